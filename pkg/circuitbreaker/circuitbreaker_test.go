package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail(context.Context) error { return errBoom }
func ok(context.Context) error   { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New("test", WithThreshold(2), WithCooldown(time.Minute), WithClock(clock))
	ctx := context.Background()

	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateClosed, cb.State())
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_SuccessResetsFailureRun(t *testing.T) {
	cb := New("test", WithThreshold(2))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	require.NoError(t, cb.Execute(ctx, ok))
	_ = cb.Execute(ctx, fail)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_TrialCallClosesAfterCooldown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []State
	cb := New("test",
		WithThreshold(1),
		WithCooldown(10*time.Second),
		WithClock(clock),
		WithOnStateChange(func(_ string, _, to State) { transitions = append(transitions, to) }),
	)
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(9 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)

	clock.Advance(2 * time.Second)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, []State{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreaker_FailedTrialReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New("test", WithThreshold(1), WithCooldown(time.Second), WithClock(clock))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, fail), errBoom)
	assert.Equal(t, StateOpen, cb.State())

	// The cool-down restarts from the failed trial call.
	clock.Advance(500 * time.Millisecond)
	assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
}

func TestCircuitBreaker_SingleTrialInFlight(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New("test", WithThreshold(1), WithCooldown(time.Second), WithClock(clock))
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	clock.Advance(2 * time.Second)

	err := cb.Execute(ctx, func(ctx context.Context) error {
		assert.Equal(t, StateHalfOpen, cb.State())
		assert.ErrorIs(t, cb.Execute(ctx, ok), ErrCircuitOpen)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_IsFailureFilter(t *testing.T) {
	errMiss := errors.New("miss")
	cb := New("test",
		WithThreshold(1),
		WithIsFailure(func(err error) bool { return !errors.Is(err, errMiss) }),
	)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, func(context.Context) error { return errMiss }), errMiss)
	}
	assert.Equal(t, StateClosed, cb.State())
}
