package bootstrap

import (
	"fmt"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/scheduler"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/scheduler/jobs"
)

// NewScheduler creates a scheduler in the app timezone with the counter
// resets and the stale impact sweep registered.
func (a *App) NewScheduler() (*scheduler.Scheduler, error) {
	sc := a.Config.Scheduler

	cfg := scheduler.DefaultConfig()
	cfg.Logger = a.Log
	cfg.Clock = a.Clock
	cfg.Timezone = a.Config.App.Location
	if sc.JobTimeout > 0 {
		cfg.JobTimeout = sc.JobTimeout
	}

	s, err := scheduler.New(cfg)
	if err != nil {
		return nil, err
	}

	daily, err := scheduler.ParseClockTime(sc.DailyResetAt)
	if err != nil {
		return nil, fmt.Errorf("daily reset: %w", err)
	}
	weekly, err := scheduler.ParseClockTime(sc.WeeklyResetAt)
	if err != nil {
		return nil, fmt.Errorf("weekly reset: %w", err)
	}
	monthly, err := scheduler.ParseClockTime(sc.MonthlyResetAt)
	if err != nil {
		return nil, fmt.Errorf("monthly reset: %w", err)
	}

	recompute := jobs.DefaultRecomputeStaleImpactConfig()
	recompute.StaleAfter = a.Config.Engine.ImpactStaleAfter
	if sc.RecomputeBatch > 0 {
		recompute.BatchSize = sc.RecomputeBatch
	}

	registrations := []struct {
		job      scheduler.Job
		schedule scheduler.Schedule
	}{
		{jobs.NewResetCountersJob(progress.WindowDaily, a.Commands.ResetCounters), scheduler.Daily(daily)},
		{jobs.NewResetCountersJob(progress.WindowWeekly, a.Commands.ResetCounters), scheduler.Weekly(sc.WeeklyResetDay, weekly)},
		{jobs.NewResetCountersJob(progress.WindowMonthly, a.Commands.ResetCounters), scheduler.Monthly(1, monthly)},
		{
			jobs.NewRecomputeStaleImpactJob(a.Stores.Scores, a.Commands.CalculateImpact, a.Clock, a.Log, recompute),
			scheduler.Every(sc.RecomputeInterval),
		},
	}
	for _, r := range registrations {
		if err := s.Register(r.job, r.schedule); err != nil {
			return nil, err
		}
	}
	return s, nil
}
