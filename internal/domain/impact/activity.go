package impact

import "time"

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY RECORDS
// Source data for the scorer. The scorer only reads them; each collection is
// the single source of truth for its slice of the score.
// ══════════════════════════════════════════════════════════════════════════════

// ResearchType distinguishes research participation events.
type ResearchType string

const (
	ResearchConsent          ResearchType = "consent"
	ResearchSurveyCompleted  ResearchType = "survey_completed"
	ResearchStudyEnrolled    ResearchType = "study_enrolled"
	ResearchDataContribution ResearchType = "data_contribution"
	ResearchFollowUp         ResearchType = "follow_up"
)

// ResearchRecord is one research participation event.
type ResearchRecord struct {
	ID         string
	UserID     string
	Type       ResearchType
	OccurredAt time.Time
}

// ForumKind distinguishes posts from replies.
type ForumKind string

const (
	ForumPost  ForumKind = "post"
	ForumReply ForumKind = "reply"
)

// CategoryEducational tags forum content that counts toward knowledge.
const CategoryEducational = "educational"

// ForumActivity is a forum post or reply with its helpful-vote count.
type ForumActivity struct {
	ID           string
	UserID       string
	Kind         ForumKind
	Category     string
	HelpfulVotes int
	CreatedAt    time.Time
}

// MentoringKind distinguishes mentoring relationships.
type MentoringKind string

const (
	MentoringPeerConnection MentoringKind = "peer_connection"
	MentoringSession        MentoringKind = "mentorship_session"
	MentoringBuddy          MentoringKind = "buddy_program"
)

// MentoringRecord is a mentoring or peer-connection relationship.
type MentoringRecord struct {
	ID        string
	MentorID  string
	MenteeID  string
	Kind      MentoringKind
	Active    bool
	StartedAt time.Time
}

// DailyKind distinguishes daily health-tracking entries.
type DailyKind string

const (
	DailyCheckin DailyKind = "checkin"
	DailySymptom DailyKind = "symptom"
	DailyJournal DailyKind = "journal"
)

// DailyRecord is one health-tracking entry.
type DailyRecord struct {
	ID         string
	UserID     string
	Kind       DailyKind
	RecordedAt time.Time
}

// CommunityContribution is a generic contribution carrying its own points.
type CommunityContribution struct {
	ID        string
	UserID    string
	Kind      string
	Points    int
	CreatedAt time.Time
}

// Activities bundles everything the scorer reads for one user.
type Activities struct {
	Research  []ResearchRecord
	Forum     []ForumActivity
	Mentoring []MentoringRecord
	Daily     []DailyRecord
	Community []CommunityContribution
}
