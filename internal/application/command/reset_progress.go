package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESET PROGRESS COMMAND
// Administrative reset: the user returns to the starting state and their
// grant history is removed.
// ══════════════════════════════════════════════════════════════════════════════

// ResetProgressCommand resets one user.
type ResetProgressCommand struct {
	UserID string

	// Reason is logged for audit.
	Reason string
}

// Validate validates the command.
func (c ResetProgressCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// ResetProgressResult reports what was reset.
type ResetProgressResult struct {
	// HadProgress is false when the user had no state before the reset.
	HadProgress   bool
	PreviousTotal int
	PreviousTier  int
	State         *progress.State
}

// ResetProgressHandler handles ResetProgressCommand.
type ResetProgressHandler struct {
	repo           progress.Repository
	eventPublisher shared.EventPublisher
	clock          clockwork.Clock
	log            *logger.Logger
}

// NewResetProgressHandler creates a new ResetProgressHandler.
func NewResetProgressHandler(
	repo progress.Repository,
	eventPublisher shared.EventPublisher,
	clock clockwork.Clock,
	log *logger.Logger,
) *ResetProgressHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ResetProgressHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		clock:          clock,
		log:            log.With(logger.Component("reset_progress")),
	}
}

// Handle executes the reset.
func (h *ResetProgressHandler) Handle(ctx context.Context, cmd ResetProgressCommand) (*ResetProgressResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("reset_progress: validation failed: %w", err)
	}
	userID := strings.TrimSpace(cmd.UserID)
	now := h.clock.Now().UTC()

	previous, err := h.repo.Reset(ctx, userID, now)
	if err != nil {
		h.log.Error("reset failed", logger.UserID(userID), logger.Err(err))
		return nil, fmt.Errorf("reset_progress: %w", err)
	}

	result := &ResetProgressResult{State: progress.NewState(userID, now)}
	if previous != nil {
		result.HadProgress = true
		result.PreviousTotal = previous.TotalPoints
		result.PreviousTier = previous.CurrentTier
	}

	if err := h.eventPublisher.Publish(shared.NewProgressResetEvent(userID, result.PreviousTotal, result.PreviousTier)); err != nil {
		h.log.Warn("failed to publish progress reset event", logger.UserID(userID), logger.Err(err))
	}

	h.log.Info("progress reset",
		logger.UserID(userID),
		logger.Int("previous_total", result.PreviousTotal),
		logger.String("reason", cmd.Reason),
	)
	return result, nil
}
