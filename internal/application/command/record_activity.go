package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECORD ACTIVITY COMMAND
// Appends an activity record for the impact scorer and, when the activity maps
// to a ledger action, grants its points. The cached impact score is dropped so
// the next read recomputes it.
// ══════════════════════════════════════════════════════════════════════════════

// ActivityKind selects the collection an activity is written to.
type ActivityKind string

const (
	ActivityResearch  ActivityKind = "research"
	ActivityForum     ActivityKind = "forum"
	ActivityMentoring ActivityKind = "mentoring"
	ActivityDaily     ActivityKind = "daily"
	ActivityCommunity ActivityKind = "community"
)

// RecordActivityCommand contains the data to record an activity.
type RecordActivityCommand struct {
	// UserID is the acting user (the mentor for mentoring records).
	UserID string

	// Kind is the collection.
	Kind ActivityKind

	// Type is the sub-type within the collection: a research type, forum
	// kind, mentoring kind, daily kind or free-form community kind.
	Type string

	// ForumCategory tags forum content (e.g. "educational").
	ForumCategory string

	// HelpfulVotes for forum content.
	HelpfulVotes int

	// MenteeID for mentoring records.
	MenteeID string

	// Points for community contributions.
	Points int

	// OccurredAt defaults to now.
	OccurredAt time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RecordActivityCommand) Validate() error {
	const op = "RecordActivity"

	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	fail := func(msg string) error {
		return shared.NewDomainError("impact", op, shared.ErrInvalidInput, msg)
	}

	switch c.Kind {
	case ActivityResearch:
		switch impact.ResearchType(c.Type) {
		case impact.ResearchConsent, impact.ResearchSurveyCompleted, impact.ResearchStudyEnrolled,
			impact.ResearchDataContribution, impact.ResearchFollowUp:
		default:
			return fail(fmt.Sprintf("unknown research type %q", c.Type))
		}
	case ActivityForum:
		if k := impact.ForumKind(c.Type); k != impact.ForumPost && k != impact.ForumReply {
			return fail(fmt.Sprintf("unknown forum kind %q", c.Type))
		}
		if c.HelpfulVotes < 0 {
			return fail("helpful votes cannot be negative")
		}
	case ActivityMentoring:
		switch impact.MentoringKind(c.Type) {
		case impact.MentoringPeerConnection, impact.MentoringSession, impact.MentoringBuddy:
		default:
			return fail(fmt.Sprintf("unknown mentoring kind %q", c.Type))
		}
		if strings.TrimSpace(c.MenteeID) == "" {
			return fail("mentee_id is required for mentoring")
		}
	case ActivityDaily:
		switch impact.DailyKind(c.Type) {
		case impact.DailyCheckin, impact.DailySymptom, impact.DailyJournal:
		default:
			return fail(fmt.Sprintf("unknown daily kind %q", c.Type))
		}
	case ActivityCommunity:
		if strings.TrimSpace(c.Type) == "" {
			return fail("community kind is required")
		}
		if c.Points <= 0 {
			return fail("community contributions need positive points")
		}
	default:
		return fail(fmt.Sprintf("unknown activity kind %q", c.Kind))
	}
	return nil
}

// RecordActivityResult contains the result of recording an activity.
type RecordActivityResult struct {
	// ActivityID is the ID of the stored record.
	ActivityID string

	// Action is the ledger action granted, empty when none applied.
	Action string

	// Grant is the ledger result, nil when no points were granted.
	Grant *GrantPointsResult

	// RecordedAt is when the activity occurred.
	RecordedAt time.Time
}

// ledgerActions maps activity sub-types to point-table actions.
var ledgerActions = map[ActivityKind]map[string]string{
	ActivityResearch: {
		string(impact.ResearchConsent):         progress.ActionResearchConsent,
		string(impact.ResearchSurveyCompleted): progress.ActionSurveyCompleted,
		string(impact.ResearchStudyEnrolled):   progress.ActionStudyEnrolled,
	},
	ActivityForum: {
		string(impact.ForumPost):  progress.ActionForumPost,
		string(impact.ForumReply): progress.ActionForumReply,
	},
	ActivityMentoring: {
		string(impact.MentoringPeerConnection): progress.ActionPeerConnection,
	},
	ActivityDaily: {
		string(impact.DailyCheckin): progress.ActionDailyCheckin,
		string(impact.DailySymptom): progress.ActionSymptomEntry,
		string(impact.DailyJournal): progress.ActionJournalEntry,
	},
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RecordActivityHandler handles the RecordActivityCommand.
type RecordActivityHandler struct {
	recorder impact.ActivityRecorder
	grants   *GrantPointsHandler
	values   progress.PointValues
	cache    impact.ScoreCache
	clock    clockwork.Clock
	log      *logger.Logger
}

// NewRecordActivityHandler creates a new RecordActivityHandler. grants and
// cache may be nil.
func NewRecordActivityHandler(
	recorder impact.ActivityRecorder,
	grants *GrantPointsHandler,
	values progress.PointValues,
	cache impact.ScoreCache,
	clock clockwork.Clock,
	log *logger.Logger,
) *RecordActivityHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RecordActivityHandler{
		recorder: recorder,
		grants:   grants,
		values:   values,
		cache:    cache,
		clock:    clock,
		log:      log.With(logger.Component("record_activity")),
	}
}

// Handle executes the record activity command.
func (h *RecordActivityHandler) Handle(ctx context.Context, cmd RecordActivityCommand) (*RecordActivityResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("record_activity: validation failed: %w", err)
	}

	userID := strings.TrimSpace(cmd.UserID)
	at := cmd.OccurredAt
	if at.IsZero() {
		at = h.clock.Now()
	}
	at = at.UTC()
	id := uuid.NewString()

	if err := h.store(ctx, id, userID, at, cmd); err != nil {
		return nil, fmt.Errorf("record_activity: %w", err)
	}

	result := &RecordActivityResult{ActivityID: id, RecordedAt: at}

	if h.cache != nil {
		if err := h.cache.Invalidate(ctx, userID); err != nil {
			h.log.Warn("failed to invalidate impact cache", logger.UserID(userID), logger.Err(err))
		}
	}

	action, ok := ledgerActions[cmd.Kind][cmd.Type]
	if !ok || h.grants == nil {
		return result, nil
	}
	if _, known := h.values[action]; !known {
		return result, nil
	}

	grant, err := h.grants.HandleAction(ctx, GrantActionCommand{
		UserID:        userID,
		Action:        action,
		CorrelationID: cmd.CorrelationID,
	})
	if err != nil {
		return result, fmt.Errorf("record_activity: activity %s stored, grant failed: %w", id, err)
	}
	result.Action = action
	result.Grant = grant
	return result, nil
}

func (h *RecordActivityHandler) store(ctx context.Context, id, userID string, at time.Time, cmd RecordActivityCommand) error {
	switch cmd.Kind {
	case ActivityResearch:
		return h.recorder.AddResearch(ctx, impact.ResearchRecord{
			ID: id, UserID: userID, Type: impact.ResearchType(cmd.Type), OccurredAt: at,
		})
	case ActivityForum:
		return h.recorder.AddForum(ctx, impact.ForumActivity{
			ID: id, UserID: userID, Kind: impact.ForumKind(cmd.Type),
			Category: cmd.ForumCategory, HelpfulVotes: cmd.HelpfulVotes, CreatedAt: at,
		})
	case ActivityMentoring:
		return h.recorder.AddMentoring(ctx, impact.MentoringRecord{
			ID: id, MentorID: userID, MenteeID: strings.TrimSpace(cmd.MenteeID),
			Kind: impact.MentoringKind(cmd.Type), Active: true, StartedAt: at,
		})
	case ActivityDaily:
		return h.recorder.AddDaily(ctx, impact.DailyRecord{
			ID: id, UserID: userID, Kind: impact.DailyKind(cmd.Type), RecordedAt: at,
		})
	case ActivityCommunity:
		return h.recorder.AddCommunity(ctx, impact.CommunityContribution{
			ID: id, UserID: userID, Kind: cmd.Type, Points: cmd.Points, CreatedAt: at,
		})
	}
	return fmt.Errorf("unknown activity kind %q", cmd.Kind)
}
