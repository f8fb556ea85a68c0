package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/config"
	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/application/query"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

func memoryConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:            "companion-engine",
			Environment:     config.EnvDevelopment,
			Timezone:        "UTC",
			Location:        time.UTC,
			ShutdownTimeout: time.Second,
		},
		Store: config.StoreConfig{Backend: config.StoreMemory},
		Redis: config.RedisConfig{Disabled: true},
		Engine: config.EngineConfig{
			ImpactStaleAfter:     time.Hour,
			GrantConflictRetries: 3,
		},
		Scheduler: config.SchedulerConfig{
			Enabled:           true,
			RecomputeInterval: 15 * time.Minute,
			RecomputeBatch:    100,
			DailyResetAt:      "00:00",
			WeeklyResetDay:    time.Monday,
			WeeklyResetAt:     "00:05",
			MonthlyResetAt:    "00:10",
			JobTimeout:        time.Minute,
		},
	}
}

func newTestApp(t *testing.T) (*App, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	app, err := New(context.Background(), memoryConfig(), logger.Nop(), Options{Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app, clock
}

func TestNew_MemoryBackend(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()

	assert.Nil(t, app.Cache)
	assert.Nil(t, app.Postgres)

	res, err := app.Commands.GrantPoints.HandleAction(ctx, command.GrantActionCommand{
		UserID: "user-1",
		Action: progress.ActionDailyCheckin,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, res.NewTotal)

	dto, err := app.Queries.TierProgress.Handle(ctx, query.GetTierProgressQuery{UserID: "user-1"})
	require.NoError(t, err)
	assert.True(t, dto.Exists)
	assert.Equal(t, 10, dto.TotalPoints)
	assert.Equal(t, 10, dto.DailyPoints)

	history, err := app.Queries.PointHistory.Handle(ctx, query.GetPointHistoryQuery{UserID: "user-1"})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, progress.ActionDailyCheckin, history[0].Action)
}

func TestNew_RecordActivityFeedsImpact(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()

	_, err := app.Commands.RecordActivity.Handle(ctx, command.RecordActivityCommand{
		UserID: "user-2",
		Kind:   command.ActivityResearch,
		Type:   "consent",
	})
	require.NoError(t, err)

	score, err := app.Queries.ImpactScore.Handle(ctx, query.GetImpactScoreQuery{UserID: "user-2"})
	require.NoError(t, err)
	assert.Greater(t, score.Research, 0.0)
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Store.Backend = "sqlite"

	_, err := New(context.Background(), cfg, nil, Options{})
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	app, _ := newTestApp(t)

	s, err := app.NewScheduler()
	require.NoError(t, err)

	var names []string
	for _, j := range s.ListJobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{
		"recompute_stale_impact",
		"reset_daily_counters",
		"reset_monthly_counters",
		"reset_weekly_counters",
	}, names)
}

func TestNewScheduler_RunResetNow(t *testing.T) {
	app, _ := newTestApp(t)
	ctx := context.Background()

	_, err := app.Commands.GrantPoints.HandleAction(ctx, command.GrantActionCommand{
		UserID: "user-3",
		Action: progress.ActionJournalEntry,
	})
	require.NoError(t, err)

	s, err := app.NewScheduler()
	require.NoError(t, err)

	result, err := s.RunNow(ctx, "reset_daily_counters")
	require.NoError(t, err)
	assert.True(t, result.Success)

	dto, err := app.Queries.TierProgress.Handle(ctx, query.GetTierProgressQuery{UserID: "user-3"})
	require.NoError(t, err)
	assert.Equal(t, 0, dto.DailyPoints)
	assert.Equal(t, 15, dto.TotalPoints)
	assert.Equal(t, 15, dto.WeeklyPoints)
}

func TestNewLogger_Format(t *testing.T) {
	cfg := memoryConfig()
	cfg.Observability.LogFormat = "text"
	assert.NotNil(t, NewLogger(cfg))
}
