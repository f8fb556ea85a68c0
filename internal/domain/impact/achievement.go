package impact

import (
	"fmt"
	"time"
)

// ErrInvalidAchievementRules is returned when the rule set fails validation.
var ErrInvalidAchievementRules = fmt.Errorf("%w: achievement rules", ErrInvalidConfig)

// Achievement is an append-only unlock keyed by (UserID, AchievementID).
type Achievement struct {
	UserID        string
	AchievementID string
	Name          string
	Category      string
	UnlockedAt    time.Time
}

// AchievementRule unlocks an achievement when a metric reaches a threshold.
type AchievementRule struct {
	ID        string
	Name      string
	Category  string
	Metric    Metric
	Threshold float64
}

// Met reports whether the score satisfies the rule.
func (r AchievementRule) Met(s *Score) bool {
	return s.Value(r.Metric) >= r.Threshold
}

// DefaultAchievementRules returns the built-in achievements.
func DefaultAchievementRules() []AchievementRule {
	return []AchievementRule{
		{ID: "research_pioneer", Name: "Research Pioneer", Category: "research", Metric: MetricResearch, Threshold: 500},
		{ID: "community_pillar", Name: "Community Pillar", Category: "support", Metric: MetricSupport, Threshold: 750},
		{ID: "knowledge_keeper", Name: "Knowledge Keeper", Category: "knowledge", Metric: MetricKnowledge, Threshold: 400},
		{ID: "guiding_light", Name: "Guiding Light", Category: "mentoring", Metric: MetricMentoring, Threshold: 300},
		{ID: "steady_flame", Name: "Steady Flame", Category: "consistency", Metric: MetricCurrentStreak, Threshold: 30},
		{ID: "impact_champion", Name: "Impact Champion", Category: "impact", Metric: MetricTotal, Threshold: 1000},
		{ID: "impact_titan", Name: "Impact Titan", Category: "impact", Metric: MetricTotal, Threshold: 5000},
	}
}

// ValidateRules checks IDs are unique and metrics known.
func ValidateRules(rules []AchievementRule) error {
	seen := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.ID == "" {
			return fmt.Errorf("%w: rule with empty id", ErrInvalidAchievementRules)
		}
		if _, dup := seen[r.ID]; dup {
			return fmt.Errorf("%w: duplicate rule %q", ErrInvalidAchievementRules, r.ID)
		}
		seen[r.ID] = struct{}{}
		if !r.Metric.IsValid() {
			return fmt.Errorf("%w: rule %q uses unknown metric %q", ErrInvalidAchievementRules, r.ID, r.Metric)
		}
	}
	return nil
}

// Earned returns the rules a score satisfies, in rule order.
func Earned(rules []AchievementRule, s *Score) []AchievementRule {
	var out []AchievementRule
	for _, r := range rules {
		if r.Met(s) {
			out = append(out, r)
		}
	}
	return out
}

// NewAchievement builds the unlock record for a rule.
func NewAchievement(userID string, r AchievementRule, at time.Time) *Achievement {
	return &Achievement{
		UserID:        userID,
		AchievementID: r.ID,
		Name:          r.Name,
		Category:      r.Category,
		UnlockedAt:    at.UTC(),
	}
}
