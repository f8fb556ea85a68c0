package impact

import (
	"fmt"
	"time"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// ErrScoreNotFound means no impact score has been calculated for the user yet.
var ErrScoreNotFound = fmt.Errorf("impact score not found: %w", shared.ErrNotFound)

// Score is a user's fully recomputed impact. Total is derived from the five
// sub-scores with Weights.Total and is never set independently.
type Score struct {
	UserID string

	Research    float64
	Support     float64
	Knowledge   float64
	Mentoring   float64
	Consistency float64

	Total int

	CurrentStreak int
	LongestStreak int

	CalculatedAt time.Time
}

// Metric names a value of a score that achievement rules can test.
type Metric string

const (
	MetricResearch      Metric = "research"
	MetricSupport       Metric = "support"
	MetricKnowledge     Metric = "knowledge"
	MetricMentoring     Metric = "mentoring"
	MetricConsistency   Metric = "consistency"
	MetricCurrentStreak Metric = "current_streak"
	MetricTotal         Metric = "total"
)

// IsValid checks if the metric is known.
func (m Metric) IsValid() bool {
	switch m {
	case MetricResearch, MetricSupport, MetricKnowledge, MetricMentoring,
		MetricConsistency, MetricCurrentStreak, MetricTotal:
		return true
	}
	return false
}

// Value returns the score's value for a metric.
func (s *Score) Value(m Metric) float64 {
	switch m {
	case MetricResearch:
		return s.Research
	case MetricSupport:
		return s.Support
	case MetricKnowledge:
		return s.Knowledge
	case MetricMentoring:
		return s.Mentoring
	case MetricConsistency:
		return s.Consistency
	case MetricCurrentStreak:
		return float64(s.CurrentStreak)
	case MetricTotal:
		return float64(s.Total)
	}
	return 0
}

// IsStale reports whether the score was calculated before now-maxAge.
func (s *Score) IsStale(now time.Time, maxAge time.Duration) bool {
	if maxAge <= 0 {
		return false
	}
	return now.Sub(s.CalculatedAt) > maxAge
}

// Consistent reports whether Total matches the sub-scores under w.
func (s *Score) Consistent(w Weights) bool {
	return s.Total == w.Total(s.Research, s.Support, s.Knowledge, s.Mentoring, s.Consistency)
}
