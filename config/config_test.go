package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

func TestFromEnv_Defaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("APP_ENV", "development")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, time.UTC, cfg.App.Location)
	assert.Equal(t, time.Hour, cfg.Engine.ImpactStaleAfter)
	assert.Equal(t, 5, cfg.Engine.GrantConflictRetries)
	assert.Equal(t, 10*time.Minute, cfg.Redis.ImpactCacheTTL)
	assert.Equal(t, time.Monday, cfg.Scheduler.WeeklyResetDay)
	assert.True(t, cfg.IsDevelopment())
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/companion")
	t.Setenv("APP_TIMEZONE", "Europe/Berlin")
	t.Setenv("IMPACT_STALE_AFTER", "30m")
	t.Setenv("IMPACT_CACHE_TTL", "2m")
	t.Setenv("GRANT_CONFLICT_RETRIES", "9")
	t.Setenv("SCHEDULER_WEEKLY_RESET_DAY", "sun")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "Europe/Berlin", cfg.App.Location.String())
	assert.Equal(t, 30*time.Minute, cfg.Engine.ImpactStaleAfter)
	assert.Equal(t, 2*time.Minute, cfg.Redis.ImpactCacheTTL)
	assert.Equal(t, 9, cfg.Engine.GrantConflictRetries)
	assert.Equal(t, time.Sunday, cfg.Scheduler.WeeklyResetDay)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "sqlite"}, "STORE_BACKEND"},
		{"postgres without url", map[string]string{"STORE_BACKEND": "postgres", "DATABASE_URL": "", "DB_HOST": ""}, "DATABASE_URL"},
		{"memory in production", map[string]string{"STORE_BACKEND": "memory", "APP_ENV": "production"}, "not allowed in production"},
		{"bad reset time", map[string]string{"STORE_BACKEND": "memory", "SCHEDULER_DAILY_RESET_AT": "midnight"}, "SCHEDULER_DAILY_RESET_AT"},
		{"bad log format", map[string]string{"STORE_BACKEND": "memory", "LOG_FORMAT": "xml"}, "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromEnv_BadTimezone(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	_, err := FromEnv()
	assert.Error(t, err)
}

const rulesYAML = `
tiers:
  - {level: 1, name: Seedling, points_required: 0, features: [basic_tracking]}
  - {level: 2, name: Sprout, points_required: 50, features: [forum_access]}
point_values:
  garden_walk: {points: 12, category: engagement}
  daily_checkin: {points: 20, category: health_tracking}
impact:
  helpful_vote_points: 3
  streak_lookback_days: 14
  weights: {research: 0.5, support: 0.2, knowledge: 0.1, mentoring: 0.1, consistency: 0.1}
achievements:
  - {id: first_steps, name: First Steps, category: impact, metric: total, threshold: 10}
`

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(rulesYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, rules.Tiers.MaxLevel())
	assert.Equal(t, 2, rules.Tiers.Resolve(50))

	v, err := rules.PointValues.Lookup("garden_walk")
	require.NoError(t, err)
	assert.Equal(t, progress.PointValue{Points: 12, Category: progress.CategoryEngagement}, v)
	v, err = rules.PointValues.Lookup(progress.ActionDailyCheckin)
	require.NoError(t, err)
	assert.Equal(t, 20, v.Points)
	_, err = rules.PointValues.Lookup(progress.ActionForumPost)
	assert.NoError(t, err, "defaults are kept")

	assert.Equal(t, 3.0, rules.Impact.HelpfulVotePoints)
	assert.Equal(t, 14, rules.Impact.StreakLookbackDays)
	assert.Equal(t, impact.DefaultConfig().QualityBonus, rules.Impact.QualityBonus)
	assert.Equal(t, 0.5, rules.Impact.Weights.Research)

	require.Len(t, rules.Achievements, 1)
	assert.Equal(t, impact.MetricTotal, rules.Achievements[0].Metric)
}

func TestParseRules_Invalid(t *testing.T) {
	tests := map[string]string{
		"tier gap":         "tiers: [{level: 1, name: A, points_required: 0}, {level: 3, name: B, points_required: 10}]",
		"unknown category": "point_values: {x: {points: 5, category: gardening}}",
		"negative points":  "point_values: {x: {points: -5, category: research}}",
		"negative bonus":   "impact: {quality_bonus: -1}",
		"unknown metric":   "achievements: [{id: a, name: A, metric: karma, threshold: 1}]",
		"malformed":        "tiers: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseRules([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestParseRules_ConfigurationKind(t *testing.T) {
	_, err := ParseRules([]byte("impact: {streak_lookback_days: 0}"))
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrConfiguration)
}

func TestLoadRules(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, progress.DefaultTierTable().MaxLevel(), rules.Tiers.MaxLevel())

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rulesYAML), 0o600))
	rules, err = LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 2, rules.Tiers.MaxLevel())

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRules_Example(t *testing.T) {
	rules, err := LoadRules("rules.example.yaml")
	require.NoError(t, err)

	assert.Equal(t, 5, rules.Tiers.MaxLevel())
	lvl, ok := rules.Tiers.RequiredTierFor("community_forum")
	require.True(t, ok)
	assert.Equal(t, 3, lvl)
	assert.Len(t, rules.Achievements, 3)

	pv, err := rules.PointValues.Lookup("clinic_visit_logged")
	require.NoError(t, err)
	assert.Equal(t, 40, pv.Points)
	assert.Equal(t, progress.CategoryHealthTracking, pv.Category)

	_, err = rules.PointValues.Lookup(progress.ActionWeekStreak)
	assert.NoError(t, err)
}
