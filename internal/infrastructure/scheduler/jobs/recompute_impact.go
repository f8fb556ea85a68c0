package jobs

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

// ImpactCalculator recomputes one user's impact score.
type ImpactCalculator interface {
	Handle(ctx context.Context, cmd command.CalculateImpactCommand) (*command.CalculateImpactResult, error)
}

// RecomputeStaleImpactConfig configures RecomputeStaleImpactJob.
type RecomputeStaleImpactConfig struct {
	// StaleAfter is the age at which a stored score is recomputed.
	StaleAfter time.Duration

	// BatchSize caps the users handled per run.
	BatchSize int

	// Concurrency is the number of users recomputed in parallel.
	Concurrency int
}

// DefaultRecomputeStaleImpactConfig returns sensible defaults.
func DefaultRecomputeStaleImpactConfig() RecomputeStaleImpactConfig {
	return RecomputeStaleImpactConfig{
		StaleAfter:  time.Hour,
		BatchSize:   500,
		Concurrency: 8,
	}
}

// RecomputeStats summarises one run.
type RecomputeStats struct {
	StartedAt  time.Time
	Duration   time.Duration
	Stale      int
	Recomputed int
	Failed     int
	NewUnlocks int
}

// RecomputeStaleImpactJob recomputes scores older than StaleAfter, oldest
// first. A failed user keeps the old score and is picked up next run.
type RecomputeStaleImpactJob struct {
	scores     impact.ScoreRepository
	calculator ImpactCalculator
	clock      clockwork.Clock
	log        *logger.Logger
	config     RecomputeStaleImpactConfig

	lastStats atomic.Pointer[RecomputeStats]
}

// NewRecomputeStaleImpactJob creates the job.
func NewRecomputeStaleImpactJob(
	scores impact.ScoreRepository,
	calculator ImpactCalculator,
	clock clockwork.Clock,
	log *logger.Logger,
	config RecomputeStaleImpactConfig,
) *RecomputeStaleImpactJob {
	defaults := DefaultRecomputeStaleImpactConfig()
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RecomputeStaleImpactJob{
		scores:     scores,
		calculator: calculator,
		clock:      clock,
		log:        log.With(logger.Component("recompute_stale_impact")),
		config:     config,
	}
}

// Name returns the job name.
func (j *RecomputeStaleImpactJob) Name() string {
	return "recompute_stale_impact"
}

// Description returns a human-readable description.
func (j *RecomputeStaleImpactJob) Description() string {
	return fmt.Sprintf("Recomputes impact scores older than %s", j.config.StaleAfter)
}

// Run executes one recomputation pass.
func (j *RecomputeStaleImpactJob) Run(ctx context.Context) error {
	stats := &RecomputeStats{StartedAt: j.clock.Now()}

	userIDs, err := j.scores.ListStale(ctx, stats.StartedAt.Add(-j.config.StaleAfter), j.config.BatchSize)
	if err != nil {
		return fmt.Errorf("list stale scores: %w", err)
	}
	stats.Stale = len(userIDs)

	var recomputed, failed, unlocks atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.config.Concurrency)
	for _, id := range userIDs {
		g.Go(func() error {
			res, err := j.calculator.Handle(gctx, command.CalculateImpactCommand{UserID: id})
			if err != nil {
				failed.Add(1)
				j.log.Warn("impact recompute failed", logger.UserID(id), logger.Err(err))
				return nil
			}
			recomputed.Add(1)
			unlocks.Add(int64(len(res.NewAchievements)))
			return nil
		})
	}
	_ = g.Wait()

	stats.Recomputed = int(recomputed.Load())
	stats.Failed = int(failed.Load())
	stats.NewUnlocks = int(unlocks.Load())
	stats.Duration = j.clock.Since(stats.StartedAt)
	j.lastStats.Store(stats)

	j.log.Info("stale impact recomputed",
		logger.Int("stale", stats.Stale),
		logger.Int("recomputed", stats.Recomputed),
		logger.Int("failed", stats.Failed),
		logger.Int("new_unlocks", stats.NewUnlocks),
	)

	if stats.Stale > 0 && stats.Failed*2 > stats.Stale {
		return fmt.Errorf("impact recompute failed for more than half of stale users (%d/%d)", stats.Failed, stats.Stale)
	}
	return ctx.Err()
}

// LastStats returns the stats of the last completed run, or nil.
func (j *RecomputeStaleImpactJob) LastStats() *RecomputeStats {
	return j.lastStats.Load()
}
