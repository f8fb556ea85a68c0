package progress

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIER TABLE
// ══════════════════════════════════════════════════════════════════════════════

// TierDefinition is one level of the progression ladder.
type TierDefinition struct {
	// Level starts at 1 and increases by one per tier.
	Level int

	// Name is the display label.
	Name string

	// PointsRequired is the inclusive lifetime-points threshold. Level 1 is 0.
	PointsRequired int

	// Features are the feature identifiers first unlocked at this level.
	Features []string
}

// TierProgress describes how far a user is through their current tier.
type TierProgress struct {
	CurrentTier         int
	TotalPoints         int
	PointsInCurrentTier int
	PointsToNextTier    int
	ProgressPercentage  float64
	NextTier            *TierDefinition
}

// IsMaxTier reports whether there is no tier above the current one.
func (p TierProgress) IsMaxTier() bool {
	return p.NextTier == nil
}

// TierTable is a validated, immutable tier ladder. All lookups are pure.
type TierTable struct {
	tiers       []TierDefinition
	cumulative  [][]string
	featureTier map[string]int
}

// DefaultTiers returns the built-in ten-level ladder.
func DefaultTiers() []TierDefinition {
	return []TierDefinition{
		{Level: 1, Name: "Seedling", PointsRequired: 0, Features: []string{"symptom_journal", "daily_checkin"}},
		{Level: 2, Name: "Sprout", PointsRequired: 100, Features: []string{"companion_chat"}},
		{Level: 3, Name: "Bloom", PointsRequired: 250, Features: []string{"community_forum", "mood_insights"}},
		{Level: 4, Name: "Blossom", PointsRequired: 500, Features: []string{"custom_themes"}},
		{Level: 5, Name: "Grove", PointsRequired: 1000, Features: []string{"research_hub", "weekly_reports"}},
		{Level: 6, Name: "Canopy", PointsRequired: 2000, Features: []string{"advanced_analytics"}},
		{Level: 7, Name: "Evergreen", PointsRequired: 3500, Features: []string{"peer_mentoring"}},
		{Level: 8, Name: "Summit", PointsRequired: 5500, Features: []string{"telemedicine_priority"}},
		{Level: 9, Name: "Aurora", PointsRequired: 8000, Features: []string{"companion_voice"}},
		{Level: 10, Name: "Constellation", PointsRequired: 12000, Features: []string{"legacy_badge", "beta_features"}},
	}
}

// DefaultTierTable returns the built-in ladder as a TierTable.
func DefaultTierTable() *TierTable {
	return MustTierTable(DefaultTiers())
}

// MustTierTable is like NewTierTable but panics on an invalid table.
func MustTierTable(defs []TierDefinition) *TierTable {
	t, err := NewTierTable(defs)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTierTable validates defs and builds a table. Levels must be 1..n in order,
// level 1 must require 0 points, thresholds must strictly increase and a
// feature may appear at only one level.
func NewTierTable(defs []TierDefinition) (*TierTable, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no tiers defined", ErrInvalidTierTable)
	}

	t := &TierTable{
		tiers:       make([]TierDefinition, len(defs)),
		cumulative:  make([][]string, len(defs)),
		featureTier: make(map[string]int),
	}

	var acc []string
	for i, d := range defs {
		if d.Level != i+1 {
			return nil, fmt.Errorf("%w: tier at position %d has level %d, want %d", ErrInvalidTierTable, i, d.Level, i+1)
		}
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidTierTable, d.Level)
		}
		if i == 0 && d.PointsRequired != 0 {
			return nil, fmt.Errorf("%w: tier 1 must require 0 points, got %d", ErrInvalidTierTable, d.PointsRequired)
		}
		if i > 0 && d.PointsRequired <= defs[i-1].PointsRequired {
			return nil, fmt.Errorf("%w: tier %d threshold %d does not exceed tier %d threshold %d",
				ErrInvalidTierTable, d.Level, d.PointsRequired, defs[i-1].Level, defs[i-1].PointsRequired)
		}

		features := make([]string, 0, len(d.Features))
		for _, f := range d.Features {
			f = strings.TrimSpace(f)
			if f == "" {
				return nil, fmt.Errorf("%w: tier %d has an empty feature id", ErrInvalidTierTable, d.Level)
			}
			if lvl, dup := t.featureTier[f]; dup {
				return nil, fmt.Errorf("%w: feature %q appears at tiers %d and %d", ErrInvalidTierTable, f, lvl, d.Level)
			}
			t.featureTier[f] = d.Level
			features = append(features, f)
		}

		t.tiers[i] = TierDefinition{
			Level:          d.Level,
			Name:           d.Name,
			PointsRequired: d.PointsRequired,
			Features:       features,
		}
		acc = append(acc, features...)
		t.cumulative[i] = append([]string(nil), acc...)
	}

	return t, nil
}

// MaxLevel returns the highest level in the table.
func (t *TierTable) MaxLevel() int {
	return len(t.tiers)
}

// Tiers returns a copy of all tier definitions.
func (t *TierTable) Tiers() []TierDefinition {
	out := make([]TierDefinition, len(t.tiers))
	for i := range t.tiers {
		out[i] = t.tiers[i].clone()
	}
	return out
}

// Tier returns the definition for a level.
func (t *TierTable) Tier(level int) (TierDefinition, bool) {
	if level < 1 || level > len(t.tiers) {
		return TierDefinition{}, false
	}
	return t.tiers[level-1].clone(), true
}

// Resolve returns the highest level whose threshold is <= totalPoints.
// Equality counts as reached. Negative totals resolve to level 1.
func (t *TierTable) Resolve(totalPoints int) int {
	// first index whose threshold exceeds the total
	i := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].PointsRequired > totalPoints
	})
	if i == 0 {
		return 1
	}
	return t.tiers[i-1].Level
}

// UnlockedFeatures returns the union of features for every level <= level, in
// ladder order. Levels are clamped to [1, MaxLevel].
func (t *TierTable) UnlockedFeatures(level int) []string {
	idx := t.clampLevel(level) - 1
	return append([]string(nil), t.cumulative[idx]...)
}

// RequiredTierFor returns the level at which a feature unlocks.
func (t *TierTable) RequiredTierFor(feature string) (int, bool) {
	lvl, ok := t.featureTier[feature]
	return lvl, ok
}

// CanUse reports whether a user at currentTier may use feature. Unknown
// features are never accessible.
func (t *TierTable) CanUse(feature string, currentTier int) bool {
	required, ok := t.RequiredTierFor(feature)
	if !ok {
		return false
	}
	return HasAccess(required, currentTier)
}

// Between returns the tiers in the half-open range (from, to], ascending.
func (t *TierTable) Between(from, to int) []TierDefinition {
	if to <= from {
		return nil
	}
	from = max(from, 0)
	to = min(to, len(t.tiers))
	out := make([]TierDefinition, 0, to-from)
	for lvl := from + 1; lvl <= to; lvl++ {
		out = append(out, t.tiers[lvl-1].clone())
	}
	return out
}

// ProgressFor computes progress through the tier that totalPoints resolves to.
// At the maximum tier the percentage is 100 and nothing is left to earn.
func (t *TierTable) ProgressFor(totalPoints int) TierProgress {
	level := t.Resolve(totalPoints)
	current := t.tiers[level-1]

	p := TierProgress{
		CurrentTier:         level,
		TotalPoints:         totalPoints,
		PointsInCurrentTier: max(totalPoints-current.PointsRequired, 0),
	}

	if level == len(t.tiers) {
		p.ProgressPercentage = 100
		return p
	}

	next := t.tiers[level].clone()
	span := next.PointsRequired - current.PointsRequired
	p.NextTier = &next
	p.PointsToNextTier = next.PointsRequired - totalPoints

	pct := float64(p.PointsInCurrentTier) / float64(span) * 100
	p.ProgressPercentage = math.Min(math.Max(pct, 0), 100)
	return p
}

// Progress computes tier progress for a state.
func (t *TierTable) Progress(s *State) TierProgress {
	if s == nil {
		return t.ProgressFor(0)
	}
	return t.ProgressFor(s.TotalPoints)
}

func (t *TierTable) clampLevel(level int) int {
	if level < 1 {
		return 1
	}
	if level > len(t.tiers) {
		return len(t.tiers)
	}
	return level
}

func (d TierDefinition) clone() TierDefinition {
	d.Features = append([]string(nil), d.Features...)
	return d
}

// HasAccess is the feature-gate check: a user at currentTier may use anything
// gated at requiredTier or below.
func HasAccess(requiredTier, currentTier int) bool {
	return currentTier >= requiredTier
}
