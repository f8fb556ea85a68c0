// Package jobs contains the worker's scheduled jobs.
package jobs

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
)

// CountersResetter zeroes one rolling counter window.
type CountersResetter interface {
	Handle(ctx context.Context, cmd command.ResetCountersCommand) (int64, error)
}

// ResetCountersJob zeroes the daily, weekly or monthly point counter of every
// user. The worker registers one instance per window.
type ResetCountersJob struct {
	window   progress.Window
	resetter CountersResetter

	lastAffected atomic.Int64
}

// NewResetCountersJob creates a job for one window.
func NewResetCountersJob(window progress.Window, resetter CountersResetter) *ResetCountersJob {
	return &ResetCountersJob{window: window, resetter: resetter}
}

// Name returns the job name.
func (j *ResetCountersJob) Name() string {
	return "reset_" + string(j.window) + "_counters"
}

// Description returns a human-readable description.
func (j *ResetCountersJob) Description() string {
	return fmt.Sprintf("Zeroes every user's %s point counter", j.window)
}

// Run executes the reset.
func (j *ResetCountersJob) Run(ctx context.Context) error {
	n, err := j.resetter.Handle(ctx, command.ResetCountersCommand{Window: j.window})
	if err != nil {
		return err
	}
	j.lastAffected.Store(n)
	return nil
}

// LastAffected returns how many users the last successful run touched.
func (j *ResetCountersJob) LastAffected() int64 {
	return j.lastAffected.Load()
}
