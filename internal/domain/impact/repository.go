package impact

import (
	"context"
	"time"
)

// ActivitySource reads the five activity collections for one user. Each read
// returns the full collection, oldest first.
type ActivitySource interface {
	ResearchRecords(ctx context.Context, userID string) ([]ResearchRecord, error)
	ForumActivity(ctx context.Context, userID string) ([]ForumActivity, error)

	// MentoringRecords returns records where the user is the mentor.
	MentoringRecords(ctx context.Context, userID string) ([]MentoringRecord, error)

	DailyRecords(ctx context.Context, userID string) ([]DailyRecord, error)
	CommunityContributions(ctx context.Context, userID string) ([]CommunityContribution, error)
}

// ActivityRecorder appends activity records. Records are never updated by the
// engine.
type ActivityRecorder interface {
	AddResearch(ctx context.Context, r ResearchRecord) error
	AddForum(ctx context.Context, f ForumActivity) error
	AddMentoring(ctx context.Context, m MentoringRecord) error
	AddDaily(ctx context.Context, d DailyRecord) error
	AddCommunity(ctx context.Context, c CommunityContribution) error
}

// ScoreRepository persists scores with overwrite semantics.
type ScoreRepository interface {
	// Get returns the last saved score, or ErrScoreNotFound.
	Get(ctx context.Context, userID string) (*Score, error)

	// Save replaces the user's score entirely.
	Save(ctx context.Context, score *Score) error

	// ListStale returns users whose score was calculated before the cutoff,
	// oldest first.
	ListStale(ctx context.Context, before time.Time, limit int) ([]string, error)
}

// AchievementRepository stores unlocks, unique on (UserID, AchievementID).
type AchievementRepository interface {
	Has(ctx context.Context, userID, achievementID string) (bool, error)

	// Unlock inserts the achievement. It returns false without error when the
	// key already exists.
	Unlock(ctx context.Context, a *Achievement) (bool, error)

	List(ctx context.Context, userID string) ([]*Achievement, error)
}

// ScoreCache is a read-through cache in front of ScoreRepository.
type ScoreCache interface {
	// Get returns ErrScoreNotFound on a miss.
	Get(ctx context.Context, userID string) (*Score, error)
	Set(ctx context.Context, score *Score) error
	Invalidate(ctx context.Context, userID string) error
}
