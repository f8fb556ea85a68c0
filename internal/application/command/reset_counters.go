package command

import (
	"context"
	"fmt"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

// ResetCountersCommand zeroes one rolling counter for every user.
type ResetCountersCommand struct {
	Window progress.Window
}

// ResetCountersHandler handles ResetCountersCommand. The worker calls it at
// day, week and month boundaries.
type ResetCountersHandler struct {
	repo           progress.Repository
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewResetCountersHandler creates a new ResetCountersHandler.
func NewResetCountersHandler(repo progress.Repository, eventPublisher shared.EventPublisher, log *logger.Logger) *ResetCountersHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &ResetCountersHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("reset_counters")),
	}
}

// Handle executes the reset and returns the number of states touched.
func (h *ResetCountersHandler) Handle(ctx context.Context, cmd ResetCountersCommand) (int64, error) {
	if !cmd.Window.IsValid() {
		return 0, shared.NewDomainError("progress", "ResetCounters", shared.ErrInvalidInput, fmt.Sprintf("unknown window %q", cmd.Window))
	}

	n, err := h.repo.ResetCounters(ctx, cmd.Window)
	if err != nil {
		return 0, fmt.Errorf("reset_counters: %w", err)
	}

	if err := h.eventPublisher.Publish(shared.NewCountersResetEvent(string(cmd.Window), n)); err != nil {
		h.log.Warn("failed to publish counters reset event", logger.Err(err))
	}
	h.log.Info("counters reset", logger.String("window", string(cmd.Window)), logger.Int64("users", n))
	return n, nil
}
