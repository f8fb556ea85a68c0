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
)

// AcknowledgeCelebrationCommand records that the UI has shown a tier celebration.
type AcknowledgeCelebrationCommand struct {
	UserID string
	Tier   int
}

// Validate validates the command.
func (c AcknowledgeCelebrationCommand) Validate() error {
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	if c.Tier < 1 {
		return shared.NewDomainError("progress", "AcknowledgeCelebration", shared.ErrValueOutOfRange, "tier must be >= 1")
	}
	return nil
}

// AcknowledgeCelebrationResult reports whether this call flipped the flag.
type AcknowledgeCelebrationResult struct {
	// Acknowledged is true only for the call that marked the tier as shown.
	Acknowledged bool
}

// AcknowledgeCelebrationHandler handles AcknowledgeCelebrationCommand.
type AcknowledgeCelebrationHandler struct {
	repo           progress.Repository
	eventPublisher shared.EventPublisher
	clock          clockwork.Clock
	log            *logger.Logger
}

// NewAcknowledgeCelebrationHandler creates a new AcknowledgeCelebrationHandler.
func NewAcknowledgeCelebrationHandler(
	repo progress.Repository,
	eventPublisher shared.EventPublisher,
	clock clockwork.Clock,
	log *logger.Logger,
) *AcknowledgeCelebrationHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AcknowledgeCelebrationHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		clock:          clock,
		log:            log.With(logger.Component("acknowledge_celebration")),
	}
}

// Handle marks the celebration as shown. Repeating it is a no-op.
func (h *AcknowledgeCelebrationHandler) Handle(ctx context.Context, cmd AcknowledgeCelebrationCommand) (*AcknowledgeCelebrationResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("acknowledge_celebration: validation failed: %w", err)
	}
	userID := strings.TrimSpace(cmd.UserID)

	err := h.repo.AcknowledgeCelebration(ctx, userID, cmd.Tier, h.clock.Now().UTC())
	switch {
	case errors.Is(err, progress.ErrAlreadyAcknowledged):
		return &AcknowledgeCelebrationResult{Acknowledged: false}, nil
	case err != nil:
		return nil, fmt.Errorf("acknowledge_celebration: %w", err)
	}

	if err := h.eventPublisher.Publish(shared.NewCelebrationAcknowledgedEvent(userID, cmd.Tier)); err != nil {
		h.log.Warn("failed to publish celebration event", logger.UserID(userID), logger.Tier(cmd.Tier), logger.Err(err))
	}
	return &AcknowledgeCelebrationResult{Acknowledged: true}, nil
}
