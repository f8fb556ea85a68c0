package progress

import (
	"sort"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STATE
// ══════════════════════════════════════════════════════════════════════════════

// TierUnlock records when a tier was reached. Entries are never modified.
type TierUnlock struct {
	Tier       int
	UnlockedAt time.Time
}

// Window identifies one of the rolling point counters.
type Window string

const (
	WindowDaily   Window = "daily"
	WindowWeekly  Window = "weekly"
	WindowMonthly Window = "monthly"
)

// IsValid checks if the window is known.
func (w Window) IsValid() bool {
	return w == WindowDaily || w == WindowWeekly || w == WindowMonthly
}

// State is a user's progression. CurrentTier always equals
// TierTable.Resolve(TotalPoints) whenever the state is persisted.
type State struct {
	// UserID is the owner.
	UserID string

	// TotalPoints is the lifetime total. It only grows, except on admin reset.
	TotalPoints int

	// CurrentTier is derived from TotalPoints.
	CurrentTier int

	// Rolling counters, zeroed by the worker at window boundaries.
	DailyPoints   int
	WeeklyPoints  int
	MonthlyPoints int

	// Unlocks is the append-only tier history in ascending tier order.
	Unlocks []TierUnlock

	// Celebrations holds the tiers whose celebration the user has seen,
	// keyed by tier with the acknowledgement time.
	Celebrations map[int]time.Time

	// Version increments on every write. Optimistic backends compare it.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewState returns the starting state: zero points, tier 1 unlocked and
// already celebrated.
func NewState(userID string, now time.Time) *State {
	now = now.UTC()
	return &State{
		UserID:       userID,
		TotalPoints:  0,
		CurrentTier:  1,
		Unlocks:      []TierUnlock{{Tier: 1, UnlockedAt: now}},
		Celebrations: map[int]time.Time{1: now},
		Version:      0,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasUnlocked reports whether tier appears in the unlock history.
func (s *State) HasUnlocked(tier int) bool {
	for _, u := range s.Unlocks {
		if u.Tier == tier {
			return true
		}
	}
	return false
}

// ApplyGrant adds the grant to the totals and counters, resolves the new tier
// and appends an unlock for every tier crossed. It returns the crossed tiers in
// ascending order. Must run inside the store's atomic unit so that the
// crossing is evaluated against the post-increment total.
func (s *State) ApplyGrant(table *TierTable, g *PointGrant) []TierDefinition {
	previous := s.CurrentTier

	s.TotalPoints += g.Points
	s.DailyPoints += g.Points
	s.WeeklyPoints += g.Points
	s.MonthlyPoints += g.Points
	s.CurrentTier = table.Resolve(s.TotalPoints)
	s.Version++
	s.UpdatedAt = g.CreatedAt

	var crossed []TierDefinition
	for _, def := range table.Between(previous, s.CurrentTier) {
		if s.HasUnlocked(def.Level) {
			continue
		}
		s.Unlocks = append(s.Unlocks, TierUnlock{Tier: def.Level, UnlockedAt: g.CreatedAt})
		crossed = append(crossed, def)
	}
	return crossed
}

// PendingCelebrations returns unlocked tiers the user has not yet seen, ascending.
func (s *State) PendingCelebrations() []TierUnlock {
	var pending []TierUnlock
	for _, u := range s.Unlocks {
		if _, shown := s.Celebrations[u.Tier]; !shown {
			pending = append(pending, u)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Tier < pending[j].Tier })
	return pending
}

// Acknowledge marks a tier's celebration as shown. It succeeds once per tier.
func (s *State) Acknowledge(tier int, at time.Time) error {
	if !s.HasUnlocked(tier) {
		return invalid("Acknowledge", ErrTierNotUnlocked, "tier has not been unlocked")
	}
	if _, shown := s.Celebrations[tier]; shown {
		return ErrAlreadyAcknowledged
	}
	if s.Celebrations == nil {
		s.Celebrations = make(map[int]time.Time)
	}
	s.Celebrations[tier] = at.UTC()
	s.Version++
	s.UpdatedAt = at.UTC()
	return nil
}

// ResetWindow zeroes one rolling counter.
func (s *State) ResetWindow(w Window) {
	switch w {
	case WindowDaily:
		s.DailyPoints = 0
	case WindowWeekly:
		s.WeeklyPoints = 0
	case WindowMonthly:
		s.MonthlyPoints = 0
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Unlocks = append([]TierUnlock(nil), s.Unlocks...)
	c.Celebrations = make(map[int]time.Time, len(s.Celebrations))
	for k, v := range s.Celebrations {
		c.Celebrations[k] = v
	}
	return &c
}
