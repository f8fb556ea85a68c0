package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Description() string           { return "test job " + j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Clock = clockwork.NewFakeClockAt(time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC))
	s, err := New(cfg)
	require.NoError(t, err)
	return s
}

func TestScheduler_RegisterAndRunNow(t *testing.T) {
	s := newTestScheduler(t)
	calls := 0
	require.NoError(t, s.Register(funcJob{name: "tick", fn: func(context.Context) error {
		calls++
		return nil
	}}, Every(time.Minute)))

	err := s.Register(funcJob{name: "tick", fn: func(context.Context) error { return nil }}, Every(time.Hour))
	assert.ErrorIs(t, err, ErrJobAlreadyExists)
	assert.ErrorIs(t, s.Register(nil, Every(time.Hour)), ErrNilJob)

	res, err := s.RunNow(context.Background(), "tick")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, calls)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "tick", jobs[0].Name)
	assert.Equal(t, int64(1), jobs[0].RunCount)
	assert.Equal(t, "@every 1m0s", jobs[0].Schedule)
}

func TestScheduler_RecordsFailuresAndPanics(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register(funcJob{name: "fails", fn: func(context.Context) error {
		return errors.New("store down")
	}}, Daily(ClockTime{Hour: 0, Minute: 5})))
	require.NoError(t, s.Register(funcJob{name: "panics", fn: func(context.Context) error {
		panic("boom")
	}}, Weekly(time.Monday, ClockTime{Hour: 0, Minute: 10})))

	res, err := s.RunNow(context.Background(), "fails")
	require.NoError(t, err)
	assert.False(t, res.Success)

	res, err = s.RunNow(context.Background(), "panics")
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error.Error(), "panicked")

	hist := s.History(10)
	require.Len(t, hist, 2)
	assert.Equal(t, "panics", hist[1].JobName)
}

func TestScheduler_StartStop(t *testing.T) {
	s := newTestScheduler(t)
	require.NoError(t, s.Register(funcJob{name: "monthly", fn: func(context.Context) error { return nil }},
		Monthly(1, ClockTime{Hour: 0, Minute: 15})))

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(), ErrAlreadyRunning)
	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

func TestParseClockTime(t *testing.T) {
	ct, err := ParseClockTime("07:30")
	require.NoError(t, err)
	assert.Equal(t, ClockTime{Hour: 7, Minute: 30}, ct)
	assert.Equal(t, "07:30", ct.String())

	_, err = ParseClockTime("7pm")
	assert.Error(t, err)
}

func TestScheduleStrings(t *testing.T) {
	at := ClockTime{Hour: 0, Minute: 5}
	assert.Equal(t, "daily at 00:05", Daily(at).String())
	assert.Equal(t, "weekly on Monday at 00:05", Weekly(time.Monday, at).String())
	assert.Equal(t, "monthly on day 1 at 00:05", Monthly(1, at).String())
	assert.Equal(t, "*/5 * * * *", Cron("*/5 * * * *").String())
}
