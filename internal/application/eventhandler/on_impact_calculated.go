// Package eventhandler contains subscribers that react to domain events.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
	"github.com/fiberfriends/companion-engine/pkg/timeutil"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON IMPACT SCORE CALCULATED
// Awards the streak milestone actions (streak_7_days, streak_30_days) once per
// streak run when a recalculated score reports a long enough current streak.
// The grant is keyed on the run's first day, so the ledger itself rejects a
// second award for the same run.
// ═══════════════════════════════════════════════════════════════════════════

// StreakMilestone maps a streak length to the ledger action it earns.
type StreakMilestone struct {
	Days   int
	Action string
}

// DefaultStreakMilestones returns the built-in milestones.
func DefaultStreakMilestones() []StreakMilestone {
	return []StreakMilestone{
		{Days: 7, Action: progress.ActionWeekStreak},
		{Days: 30, Action: progress.ActionMonthStreak},
	}
}

// ActionGranter grants table-driven points.
type ActionGranter interface {
	HandleAction(ctx context.Context, cmd command.GrantActionCommand) (*command.GrantPointsResult, error)
}

// GrantHistory lists a user's grants, newest first.
type GrantHistory interface {
	ListGrants(ctx context.Context, userID string, page shared.Pagination) ([]*progress.PointGrant, error)
}

// OnImpactCalculatedHandler handles ImpactScoreCalculatedEvent.
type OnImpactCalculatedHandler struct {
	grants     ActionGranter
	history    GrantHistory
	calendar   *timeutil.Calendar
	milestones []StreakMilestone
	timeout    time.Duration
	log        *logger.Logger
}

// NewOnImpactCalculatedHandler creates the handler. A nil milestones slice
// uses DefaultStreakMilestones.
func NewOnImpactCalculatedHandler(
	grants ActionGranter,
	history GrantHistory,
	calendar *timeutil.Calendar,
	milestones []StreakMilestone,
	log *logger.Logger,
) *OnImpactCalculatedHandler {
	if milestones == nil {
		milestones = DefaultStreakMilestones()
	}
	if calendar == nil {
		calendar = timeutil.UTC()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &OnImpactCalculatedHandler{
		grants:     grants,
		history:    history,
		calendar:   calendar,
		milestones: milestones,
		timeout:    30 * time.Second,
		log:        log.With(logger.String("handler", "on_impact_calculated")),
	}
}

// Handle implements shared.EventHandler. Only events produced in this process
// are acted on; copies relayed from other instances arrive as envelopes and
// are skipped so a milestone is granted by the instance that computed it.
func (h *OnImpactCalculatedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.ImpactScoreCalculatedEvent)
	if !ok {
		return nil
	}
	if ev.CurrentStreak <= 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	streakStart := h.calendar.StartOfDay(h.calendar.Now()).AddDate(0, 0, -(ev.CurrentStreak - 1))

	for _, m := range h.milestones {
		if ev.CurrentStreak < m.Days {
			continue
		}
		granted, err := h.grantedSince(ctx, ev.UserID, m.Action, streakStart)
		if err != nil {
			return fmt.Errorf("check %s history: %w", m.Action, err)
		}
		if granted {
			continue
		}

		// Keyed on the run start so concurrent recomputes collapse onto one grant.
		res, err := h.grants.HandleAction(ctx, command.GrantActionCommand{
			UserID:         ev.UserID,
			Action:         m.Action,
			IdempotencyKey: m.Action + "@" + streakStart.Format(time.DateOnly),
			CorrelationID:  ev.CorrelationID,
		})
		if errors.Is(err, progress.ErrDuplicateGrant) {
			continue
		}
		if err != nil {
			return fmt.Errorf("grant %s: %w", m.Action, err)
		}
		h.log.Info("streak milestone granted",
			logger.UserID(ev.UserID),
			logger.Action(m.Action),
			logger.Int("streak", ev.CurrentStreak),
			logger.Points(res.Grant.Points),
		)
	}
	return nil
}

// grantedSince reports whether action was granted at or after since.
func (h *OnImpactCalculatedHandler) grantedSince(ctx context.Context, userID, action string, since time.Time) (bool, error) {
	for page := 1; ; page++ {
		grants, err := h.history.ListGrants(ctx, userID, shared.NewPagination(page, 100))
		if err != nil {
			return false, err
		}
		for _, g := range grants {
			if g.CreatedAt.Before(since) {
				return false, nil
			}
			if g.Action == action {
				return true, nil
			}
		}
		if len(grants) < 100 {
			return false, nil
		}
	}
}
