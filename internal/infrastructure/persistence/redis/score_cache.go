package redis

import (
	"context"
	"errors"
	"time"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/pkg/circuitbreaker"
)

type scoreEntry struct {
	UserID        string    `json:"user_id"`
	Research      float64   `json:"research"`
	Support       float64   `json:"support"`
	Knowledge     float64   `json:"knowledge"`
	Mentoring     float64   `json:"mentoring"`
	Consistency   float64   `json:"consistency"`
	Total         int       `json:"total"`
	CurrentStreak int       `json:"current_streak"`
	LongestStreak int       `json:"longest_streak"`
	CalculatedAt  time.Time `json:"calculated_at"`
}

// ScoreCache implements impact.ScoreCache on top of Cache.
type ScoreCache struct {
	cache   *Cache
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
}

// NewScoreCache creates a score cache. A non-positive ttl uses TTLImpactScore.
func NewScoreCache(cache *Cache, ttl time.Duration) *ScoreCache {
	if ttl <= 0 {
		ttl = TTLImpactScore
	}
	return &ScoreCache{cache: cache, ttl: ttl}
}

var _ impact.ScoreCache = (*ScoreCache)(nil)

// WithBreaker routes reads and writes through cb. A miss is not a failure.
// Invalidate always reaches Redis so a recovered cache never serves a score
// that should have been dropped.
func (c *ScoreCache) WithBreaker(cb *circuitbreaker.CircuitBreaker) *ScoreCache {
	c.breaker = cb
	return c
}

func (c *ScoreCache) guard(ctx context.Context, fn func(context.Context) error) error {
	if c.breaker == nil {
		return fn(ctx)
	}
	return c.breaker.Execute(ctx, fn)
}

// IsCacheFailure reports whether err should count against the breaker.
func IsCacheFailure(err error) bool {
	return err != nil && !errors.Is(err, ErrCacheMiss) && !errors.Is(err, impact.ErrScoreNotFound)
}

// Get implements impact.ScoreCache.
func (c *ScoreCache) Get(ctx context.Context, userID string) (*impact.Score, error) {
	var e scoreEntry
	err := c.guard(ctx, func(ctx context.Context) error {
		return c.cache.Get(ctx, ImpactKey(userID), &e)
	})
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, impact.ErrScoreNotFound
		}
		return nil, err
	}
	return &impact.Score{
		UserID:        e.UserID,
		Research:      e.Research,
		Support:       e.Support,
		Knowledge:     e.Knowledge,
		Mentoring:     e.Mentoring,
		Consistency:   e.Consistency,
		Total:         e.Total,
		CurrentStreak: e.CurrentStreak,
		LongestStreak: e.LongestStreak,
		CalculatedAt:  e.CalculatedAt,
	}, nil
}

// Set implements impact.ScoreCache.
func (c *ScoreCache) Set(ctx context.Context, s *impact.Score) error {
	entry := scoreEntry{
		UserID:        s.UserID,
		Research:      s.Research,
		Support:       s.Support,
		Knowledge:     s.Knowledge,
		Mentoring:     s.Mentoring,
		Consistency:   s.Consistency,
		Total:         s.Total,
		CurrentStreak: s.CurrentStreak,
		LongestStreak: s.LongestStreak,
		CalculatedAt:  s.CalculatedAt,
	}
	return c.guard(ctx, func(ctx context.Context) error {
		return c.cache.Set(ctx, ImpactKey(s.UserID), entry, c.ttl)
	})
}

// Invalidate implements impact.ScoreCache.
func (c *ScoreCache) Invalidate(ctx context.Context, userID string) error {
	return c.cache.Delete(ctx, ImpactKey(userID))
}
