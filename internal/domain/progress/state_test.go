package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

var t0 = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func grant(t *testing.T, points int) *PointGrant {
	t.Helper()
	g, err := NewPointGrant("user-1", "test_action", points, CategoryEngagement, t0)
	require.NoError(t, err)
	return g
}

func TestNewState(t *testing.T) {
	s := NewState("user-1", t0)

	assert.Equal(t, 0, s.TotalPoints)
	assert.Equal(t, 1, s.CurrentTier)
	assert.Equal(t, []TierUnlock{{Tier: 1, UnlockedAt: t0}}, s.Unlocks)
	assert.Empty(t, s.PendingCelebrations())
}

func TestApplyGrant_SequentialCrossing(t *testing.T) {
	table := smallTable(t)
	s := NewState("user-1", t0)

	crossed := s.ApplyGrant(table, grant(t, 90))
	assert.Empty(t, crossed)
	assert.Equal(t, 90, s.TotalPoints)
	assert.Equal(t, 1, s.CurrentTier)

	crossed = s.ApplyGrant(table, grant(t, 40))
	require.Len(t, crossed, 1)
	assert.Equal(t, 2, crossed[0].Level)
	assert.Equal(t, 130, s.TotalPoints)
	assert.Equal(t, 2, s.CurrentTier)
	assert.Len(t, s.Unlocks, 2)
	assert.Equal(t, int64(2), s.Version)
}

func TestApplyGrant_MultiTierJumpRecordsEveryTier(t *testing.T) {
	table := smallTable(t)
	s := NewState("user-1", t0)

	crossed := s.ApplyGrant(table, grant(t, 300))

	require.Len(t, crossed, 2)
	assert.Equal(t, 2, crossed[0].Level)
	assert.Equal(t, 3, crossed[1].Level)
	assert.Equal(t, 3, s.CurrentTier)
	assert.Equal(t, []int{2, 3}, tiersOf(s.PendingCelebrations()))
}

func TestApplyGrant_IncrementsCounters(t *testing.T) {
	table := smallTable(t)
	s := NewState("user-1", t0)
	s.ApplyGrant(table, grant(t, 15))
	s.ApplyGrant(table, grant(t, 5))

	assert.Equal(t, 20, s.DailyPoints)
	assert.Equal(t, 20, s.WeeklyPoints)
	assert.Equal(t, 20, s.MonthlyPoints)

	s.ResetWindow(WindowDaily)
	assert.Equal(t, 0, s.DailyPoints)
	assert.Equal(t, 20, s.WeeklyPoints)
	assert.Equal(t, 20, s.TotalPoints)
}

func TestApplyGrant_TierAlwaysMatchesResolve(t *testing.T) {
	table := DefaultTierTable()
	s := NewState("user-1", t0)
	for _, p := range []int{1, 99, 150, 600, 1, 3000, 8000, 50} {
		s.ApplyGrant(table, grant(t, p))
		require.Equal(t, table.Resolve(s.TotalPoints), s.CurrentTier)
	}
}

func TestAcknowledge(t *testing.T) {
	table := smallTable(t)
	s := NewState("user-1", t0)
	s.ApplyGrant(table, grant(t, 300))

	require.NoError(t, s.Acknowledge(2, t0.Add(time.Minute)))
	assert.Equal(t, []int{3}, tiersOf(s.PendingCelebrations()))

	assert.ErrorIs(t, s.Acknowledge(2, t0), ErrAlreadyAcknowledged)
	assert.ErrorIs(t, s.Acknowledge(9, t0), ErrTierNotUnlocked)
	assert.True(t, shared.IsNotFound(s.Acknowledge(9, t0)))

	// unlock history is untouched by acknowledgements
	assert.Len(t, s.Unlocks, 3)
}

func TestClone_IsDeep(t *testing.T) {
	s := NewState("user-1", t0)
	c := s.Clone()
	c.Unlocks = append(c.Unlocks, TierUnlock{Tier: 2})
	c.Celebrations[2] = t0

	assert.Len(t, s.Unlocks, 1)
	assert.NotContains(t, s.Celebrations, 2)
}

func TestNewPointGrant_Validation(t *testing.T) {
	_, err := NewPointGrant("user-1", "x", 0, CategoryCommunity, t0)
	assert.ErrorIs(t, err, ErrNonPositivePoints)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewPointGrant("user-1", "x", -5, CategoryCommunity, t0)
	assert.ErrorIs(t, err, ErrNonPositivePoints)

	_, err = NewPointGrant("user-1", "x", 5, Category("bogus"), t0)
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = NewPointGrant(" ", "x", 5, CategoryCommunity, t0)
	assert.True(t, shared.IsValidation(err))

	_, err = NewPointGrant("user-1", "  ", 5, CategoryCommunity, t0)
	assert.True(t, shared.IsValidation(err))

	g, err := NewPointGrant("user-1", "forum_post", 20, CategoryCommunity, t0)
	require.NoError(t, err)
	assert.NotEmpty(t, g.ID)
	assert.Equal(t, t0, g.CreatedAt)
}

func TestPointValues(t *testing.T) {
	pv := DefaultPointValues()
	require.NoError(t, pv.Validate())

	v, err := pv.Lookup(ActionForumPost)
	require.NoError(t, err)
	assert.Equal(t, CategoryCommunity, v.Category)

	_, err = pv.Lookup("teleport")
	assert.ErrorIs(t, err, ErrUnknownAction)

	bad := pv.Merge(PointValues{"broken": {Points: 0, Category: CategoryMilestone}})
	assert.ErrorIs(t, bad.Validate(), ErrInvalidPointValues)
}

func TestParseCategory(t *testing.T) {
	c, err := ParseCategory(" Research ")
	require.NoError(t, err)
	assert.Equal(t, CategoryResearch, c)

	_, err = ParseCategory("gaming")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func tiersOf(unlocks []TierUnlock) []int {
	out := make([]int, 0, len(unlocks))
	for _, u := range unlocks {
		out = append(out, u.Tier)
	}
	return out
}
