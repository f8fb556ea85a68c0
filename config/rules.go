package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
)

// Rules is the validated engine rule set: the tier ladder, the action point
// table, the impact scoring config and the achievement rules.
type Rules struct {
	Tiers        *progress.TierTable
	PointValues  progress.PointValues
	Impact       impact.Config
	Achievements []impact.AchievementRule
}

// DefaultRules returns the built-in rule set.
func DefaultRules() *Rules {
	return &Rules{
		Tiers:        progress.DefaultTierTable(),
		PointValues:  progress.DefaultPointValues(),
		Impact:       impact.DefaultConfig(),
		Achievements: impact.DefaultAchievementRules(),
	}
}

type rulesFile struct {
	Tiers        []tierYAML                `yaml:"tiers"`
	PointValues  map[string]pointValueYAML `yaml:"point_values"`
	Impact       *impactYAML               `yaml:"impact"`
	Achievements []achievementYAML         `yaml:"achievements"`
}

type tierYAML struct {
	Level          int      `yaml:"level"`
	Name           string   `yaml:"name"`
	PointsRequired int      `yaml:"points_required"`
	Features       []string `yaml:"features"`
}

type pointValueYAML struct {
	Points   int    `yaml:"points"`
	Category string `yaml:"category"`
}

type weightsYAML struct {
	Research    float64 `yaml:"research"`
	Support     float64 `yaml:"support"`
	Knowledge   float64 `yaml:"knowledge"`
	Mentoring   float64 `yaml:"mentoring"`
	Consistency float64 `yaml:"consistency"`
}

// impactYAML overlays the defaults; absent keys keep their default.
type impactYAML struct {
	ResearchPoints           map[string]float64 `yaml:"research_points"`
	ForumBasePoints          map[string]float64 `yaml:"forum_base_points"`
	HelpfulVotePoints        *float64           `yaml:"helpful_vote_points"`
	MentoringPoints          map[string]float64 `yaml:"mentoring_points"`
	DailyRecordPoints        *float64           `yaml:"daily_record_points"`
	StreakDayPoints          *float64           `yaml:"streak_day_points"`
	ResearchConsistencyBonus *float64           `yaml:"research_consistency_bonus"`
	ResearchBonusMonths      *int               `yaml:"research_bonus_months"`
	SupportMinVotes          *int               `yaml:"support_min_votes"`
	QualityBonus             *float64           `yaml:"quality_bonus"`
	QualityMinVotes          *int               `yaml:"quality_min_votes"`
	KnowledgeMinVotes        *int               `yaml:"knowledge_min_votes"`
	MentoringBonus           *float64           `yaml:"mentoring_bonus"`
	MentoringBonusRecords    *int               `yaml:"mentoring_bonus_records"`
	StreakLookbackDays       *int               `yaml:"streak_lookback_days"`
	Weights                  *weightsYAML       `yaml:"weights"`
}

type achievementYAML struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Category  string  `yaml:"category"`
	Metric    string  `yaml:"metric"`
	Threshold float64 `yaml:"threshold"`
}

// LoadRules reads a rules file. An empty path returns DefaultRules.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	rules, err := ParseRules(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return rules, nil
}

// ParseRules decodes and validates a YAML rule set. Omitted sections keep the
// built-in defaults; point_values entries are merged over the default table.
func ParseRules(data []byte) (*Rules, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	rules := DefaultRules()

	if len(f.Tiers) > 0 {
		defs := make([]progress.TierDefinition, 0, len(f.Tiers))
		for _, t := range f.Tiers {
			defs = append(defs, progress.TierDefinition{
				Level:          t.Level,
				Name:           t.Name,
				PointsRequired: t.PointsRequired,
				Features:       t.Features,
			})
		}
		table, err := progress.NewTierTable(defs)
		if err != nil {
			return nil, err
		}
		rules.Tiers = table
	}

	if len(f.PointValues) > 0 {
		overrides := make(progress.PointValues, len(f.PointValues))
		for action, v := range f.PointValues {
			cat, err := progress.ParseCategory(v.Category)
			if err != nil {
				return nil, fmt.Errorf("point value %q: %w", action, err)
			}
			overrides[action] = progress.PointValue{Points: v.Points, Category: cat}
		}
		rules.PointValues = rules.PointValues.Merge(overrides)
	}
	if err := rules.PointValues.Validate(); err != nil {
		return nil, err
	}

	if f.Impact != nil {
		f.Impact.apply(&rules.Impact)
	}
	if err := rules.Impact.Validate(); err != nil {
		return nil, err
	}

	if len(f.Achievements) > 0 {
		ach := make([]impact.AchievementRule, 0, len(f.Achievements))
		for _, a := range f.Achievements {
			ach = append(ach, impact.AchievementRule{
				ID:        a.ID,
				Name:      a.Name,
				Category:  a.Category,
				Metric:    impact.Metric(a.Metric),
				Threshold: a.Threshold,
			})
		}
		rules.Achievements = ach
	}
	if err := impact.ValidateRules(rules.Achievements); err != nil {
		return nil, err
	}

	return rules, nil
}

func (y *impactYAML) apply(c *impact.Config) {
	if y.ResearchPoints != nil {
		c.ResearchPoints = make(map[impact.ResearchType]float64, len(y.ResearchPoints))
		for k, v := range y.ResearchPoints {
			c.ResearchPoints[impact.ResearchType(k)] = v
		}
	}
	if y.ForumBasePoints != nil {
		c.ForumBasePoints = make(map[impact.ForumKind]float64, len(y.ForumBasePoints))
		for k, v := range y.ForumBasePoints {
			c.ForumBasePoints[impact.ForumKind(k)] = v
		}
	}
	if y.MentoringPoints != nil {
		c.MentoringPoints = make(map[impact.MentoringKind]float64, len(y.MentoringPoints))
		for k, v := range y.MentoringPoints {
			c.MentoringPoints[impact.MentoringKind(k)] = v
		}
	}

	setFloat(&c.HelpfulVotePoints, y.HelpfulVotePoints)
	setFloat(&c.DailyRecordPoints, y.DailyRecordPoints)
	setFloat(&c.StreakDayPoints, y.StreakDayPoints)
	setFloat(&c.ResearchConsistencyBonus, y.ResearchConsistencyBonus)
	setFloat(&c.QualityBonus, y.QualityBonus)
	setFloat(&c.MentoringBonus, y.MentoringBonus)
	setInt(&c.ResearchBonusMonths, y.ResearchBonusMonths)
	setInt(&c.SupportMinVotes, y.SupportMinVotes)
	setInt(&c.QualityMinVotes, y.QualityMinVotes)
	setInt(&c.KnowledgeMinVotes, y.KnowledgeMinVotes)
	setInt(&c.MentoringBonusRecords, y.MentoringBonusRecords)
	setInt(&c.StreakLookbackDays, y.StreakLookbackDays)

	if y.Weights != nil {
		c.Weights = impact.Weights{
			Research:    y.Weights.Research,
			Support:     y.Weights.Support,
			Knowledge:   y.Weights.Knowledge,
			Mentoring:   y.Weights.Mentoring,
			Consistency: y.Weights.Consistency,
		}
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
