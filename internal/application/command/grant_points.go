// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
	"github.com/fiberfriends/companion-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRANT POINTS COMMAND
// Appends a point grant, raises the user's totals and detects tier crossings
// inside one atomic unit of the progress store.
// ══════════════════════════════════════════════════════════════════════════════

// GrantPointsCommand awards points for one action.
type GrantPointsCommand struct {
	// UserID is the opaque identity from the auth provider.
	UserID string

	// Points must be positive.
	Points int

	// Action is a short label such as "daily_checkin".
	Action string

	// Category of the action.
	Category progress.Category

	// IdempotencyKey, when set, makes the grant ID deterministic so repeats
	// of the same award fail with progress.ErrDuplicateGrant.
	IdempotencyKey string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate rejects malformed grants before anything is persisted.
func (c GrantPointsCommand) Validate() error {
	const op = "GrantPoints"

	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if strings.TrimSpace(c.Action) == "" {
		return shared.NewDomainError("progress", op, shared.ErrEmptyValue, "action is required")
	}
	if c.Points <= 0 {
		return shared.NewDomainError("progress", op, progress.ErrNonPositivePoints, fmt.Sprintf("points must be positive, got %d", c.Points))
	}
	if !c.Category.IsValid() {
		return shared.NewDomainError("progress", op, progress.ErrUnknownCategory, fmt.Sprintf("unknown category %q", c.Category))
	}
	return nil
}

// GrantActionCommand awards the points configured for an action.
type GrantActionCommand struct {
	UserID         string
	Action         string
	IdempotencyKey string
	CorrelationID  string
}

// GrantPointsResult is returned to the caller for celebration UI.
type GrantPointsResult struct {
	// Grant is the ledger entry that was appended.
	Grant *progress.PointGrant

	// NewTotal is the user's lifetime total after the grant.
	NewTotal int

	// PreviousTier and NewTier bracket the grant.
	PreviousTier int
	NewTier      int

	// TiersCrossed lists every tier reached by this grant, ascending.
	TiersCrossed []progress.TierDefinition

	// State is the persisted state after the grant.
	State *progress.State
}

// TierCrossed returns the highest tier reached by the grant, or nil.
func (r *GrantPointsResult) TierCrossed() *progress.TierDefinition {
	if len(r.TiersCrossed) == 0 {
		return nil
	}
	t := r.TiersCrossed[len(r.TiersCrossed)-1]
	return &t
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// GrantPointsHandler handles GrantPointsCommand and GrantActionCommand.
type GrantPointsHandler struct {
	repo           progress.Repository
	tiers          *progress.TierTable
	values         progress.PointValues
	eventPublisher shared.EventPublisher
	retrier        *retry.Retrier
	clock          clockwork.Clock
	log            *logger.Logger
}

// GrantPointsHandlerConfig contains configuration for the handler.
type GrantPointsHandlerConfig struct {
	// ConflictRetries bounds attempts when an optimistic store reports a
	// concurrent modification.
	ConflictRetries int
}

// DefaultGrantPointsHandlerConfig returns default configuration.
func DefaultGrantPointsHandlerConfig() GrantPointsHandlerConfig {
	return GrantPointsHandlerConfig{
		ConflictRetries: 5,
	}
}

// NewGrantPointsHandler creates a new GrantPointsHandler.
func NewGrantPointsHandler(
	repo progress.Repository,
	tiers *progress.TierTable,
	values progress.PointValues,
	eventPublisher shared.EventPublisher,
	clock clockwork.Clock,
	log *logger.Logger,
	config GrantPointsHandlerConfig,
) *GrantPointsHandler {
	if config.ConflictRetries <= 0 {
		config = DefaultGrantPointsHandlerConfig()
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}

	return &GrantPointsHandler{
		repo:           repo,
		tiers:          tiers,
		values:         values,
		eventPublisher: eventPublisher,
		retrier:        retry.ConflictRetrier(config.ConflictRetries, shared.IsRetryable),
		clock:          clock,
		log:            log.With(logger.Component("grant_points")),
	}
}

// HandleAction resolves points and category from the point table, then grants.
func (h *GrantPointsHandler) HandleAction(ctx context.Context, cmd GrantActionCommand) (*GrantPointsResult, error) {
	value, err := h.values.Lookup(cmd.Action)
	if err != nil {
		return nil, fmt.Errorf("grant_points: %w", err)
	}

	return h.Handle(ctx, GrantPointsCommand{
		UserID:         cmd.UserID,
		Points:         value.Points,
		Action:         cmd.Action,
		Category:       value.Category,
		IdempotencyKey: cmd.IdempotencyKey,
		CorrelationID:  cmd.CorrelationID,
	})
}

// Handle executes the grant.
func (h *GrantPointsHandler) Handle(ctx context.Context, cmd GrantPointsCommand) (*GrantPointsResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("grant_points: validation failed: %w", err)
	}

	start := h.clock.Now()
	userID := strings.TrimSpace(cmd.UserID)

	var result *GrantPointsResult
	err := h.retrier.Do(ctx, func(ctx context.Context) error {
		var (
			grant        *progress.PointGrant
			previousTier int
			crossed      []progress.TierDefinition
		)

		state, err := h.repo.Apply(ctx, userID, func(s *progress.State) (*progress.PointGrant, error) {
			g, err := progress.NewPointGrant(userID, cmd.Action, cmd.Points, cmd.Category, h.clock.Now())
			if err != nil {
				return nil, err
			}
			if cmd.IdempotencyKey != "" {
				g.ID = progress.GrantIDFor(userID, cmd.IdempotencyKey)
			}
			previousTier = s.CurrentTier
			crossed = s.ApplyGrant(h.tiers, g)
			grant = g
			return g, nil
		})
		if err != nil {
			if shared.IsConflict(err) {
				h.log.Debug("grant conflicted, retrying", logger.UserID(userID), logger.Err(err))
			}
			return err
		}

		result = &GrantPointsResult{
			Grant:        grant,
			NewTotal:     state.TotalPoints,
			PreviousTier: previousTier,
			NewTier:      state.CurrentTier,
			TiersCrossed: crossed,
			State:        state,
		}
		return nil
	})
	if errors.Is(err, progress.ErrDuplicateGrant) {
		h.log.Debug("grant already recorded", logger.UserID(userID), logger.Action(cmd.Action))
		return nil, fmt.Errorf("grant_points: %w", err)
	}
	if err != nil {
		h.log.Error("grant failed",
			logger.UserID(userID),
			logger.Action(cmd.Action),
			logger.Points(cmd.Points),
			logger.Err(err),
		)
		return nil, fmt.Errorf("grant_points: %w", err)
	}

	h.publish(result, cmd.CorrelationID)

	h.log.Debug("points granted",
		logger.UserID(userID),
		logger.Action(cmd.Action),
		logger.Points(cmd.Points),
		logger.Int("new_total", result.NewTotal),
		logger.Tier(result.NewTier),
		logger.Latency(h.clock.Since(start)),
	)

	return result, nil
}

func (h *GrantPointsHandler) publish(r *GrantPointsResult, correlationID string) {
	g := r.Grant

	granted := shared.NewPointsGrantedEvent(g.UserID, g.ID, g.Action, g.Category.String(), g.Points, r.NewTotal, r.NewTier)
	granted.BaseEvent = granted.BaseEvent.WithCorrelationID(correlationID)
	if err := h.eventPublisher.Publish(granted); err != nil {
		h.log.Warn("failed to publish points granted event", logger.UserID(g.UserID), logger.Err(err))
	}

	for _, tier := range r.TiersCrossed {
		unlocked := shared.NewTierUnlockedEvent(g.UserID, tier.Level, tier.Name, tier.Features)
		unlocked.BaseEvent = unlocked.BaseEvent.WithCorrelationID(correlationID)
		if err := h.eventPublisher.Publish(unlocked); err != nil {
			h.log.Warn("failed to publish tier unlocked event", logger.UserID(g.UserID), logger.Tier(tier.Level), logger.Err(err))
		}
	}
}
