// Package circuitbreaker stops calls to a failing dependency for a cool-down
// period. The engine puts one in front of the Redis score cache so an
// unreachable Redis costs one fast error instead of a dial timeout per read.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State represents the current state of the circuit breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota
	// StateOpen rejects calls until the cool-down has passed.
	StateOpen
	// StateHalfOpen lets a single trial call through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned without calling fn while the breaker is open or
// a half-open trial call is already in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Option configures a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithThreshold sets how many consecutive failures open the breaker.
// Default: 3
func WithThreshold(n int) Option {
	return func(cb *CircuitBreaker) {
		if n > 0 {
			cb.threshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before trying again.
// Default: 15s
func WithCooldown(d time.Duration) Option {
	return func(cb *CircuitBreaker) {
		if d > 0 {
			cb.cooldown = d
		}
	}
}

// WithIsFailure decides which errors count against the breaker. By default
// every non-nil error does.
func WithIsFailure(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		if fn != nil {
			cb.isFailure = fn
		}
	}
}

// WithClock sets the clock used for the cool-down.
func WithClock(clock clockwork.Clock) Option {
	return func(cb *CircuitBreaker) {
		if clock != nil {
			cb.clock = clock
		}
	}
}

// WithOnStateChange registers a callback run on every transition. It is
// called with the breaker's lock held and must not call back into it.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(cb *CircuitBreaker) {
		cb.onChange = fn
	}
}

// CircuitBreaker guards calls to one dependency.
type CircuitBreaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	isFailure func(error) bool
	clock     clockwork.Clock
	onChange  func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	trialing bool
}

// New creates a closed breaker.
func New(name string, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:      name,
		threshold: 3,
		cooldown:  15 * time.Second,
		isFailure: func(err error) bool { return err != nil },
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the breaker is open and records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.clock.Since(cb.openedAt) < cb.cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.trialing = true
		return nil
	default:
		if cb.trialing {
			return ErrCircuitOpen
		}
		cb.trialing = true
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && cb.isFailure(err)

	switch cb.state {
	case StateHalfOpen:
		cb.trialing = false
		if failed {
			cb.trip()
			return
		}
		cb.failures = 0
		cb.setState(StateClosed)
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.threshold {
			cb.trip()
		}
	}
	// A call admitted before the breaker opened does not move it.
}

// trip must be called with mu held.
func (cb *CircuitBreaker) trip() {
	cb.failures = 0
	cb.openedAt = cb.clock.Now()
	cb.setState(StateOpen)
}

// setState must be called with mu held.
func (cb *CircuitBreaker) setState(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if cb.onChange != nil {
		cb.onChange(cb.name, from, to)
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
