package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func grantFn(t *testing.T, table *progress.TierTable, userID string, points int, at time.Time) progress.GrantFunc {
	return func(s *progress.State) (*progress.PointGrant, error) {
		g, err := progress.NewPointGrant(userID, "test", points, progress.CategoryEngagement, at)
		if err != nil {
			return nil, err
		}
		s.ApplyGrant(table, g)
		return g, nil
	}
}

func TestProgressStore_GetMissing(t *testing.T) {
	store := NewProgressStore(clockwork.NewFakeClockAt(start))

	_, err := store.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, progress.ErrProgressNotFound)
	assert.True(t, shared.IsNotFound(err))
}

func TestProgressStore_ApplyCreatesAndPersists(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	st, err := store.Apply(ctx, "u1", grantFn(t, table, "u1", 40, start))
	require.NoError(t, err)
	assert.Equal(t, 40, st.TotalPoints)

	// mutating the returned copy must not leak into the store
	st.TotalPoints = 9999

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 40, got.TotalPoints)
	assert.Equal(t, 40, got.DailyPoints)
}

func TestProgressStore_ApplyErrorLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	_, err := store.Apply(ctx, "u1", grantFn(t, table, "u1", 10, start))
	require.NoError(t, err)

	_, err = store.Apply(ctx, "u1", func(s *progress.State) (*progress.PointGrant, error) {
		s.TotalPoints = 500
		return nil, progress.ErrNonPositivePoints
	})
	require.Error(t, err)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalPoints)

	grants, err := store.ListGrants(ctx, "u1", shared.DefaultPagination())
	require.NoError(t, err)
	assert.Len(t, grants, 1)
}

func TestProgressStore_ApplyRejectsDuplicateGrantID(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()
	id := progress.GrantIDFor("u1", "once")

	keyed := func(s *progress.State) (*progress.PointGrant, error) {
		g, err := progress.NewPointGrant("u1", "test", 10, progress.CategoryEngagement, start)
		if err != nil {
			return nil, err
		}
		g.ID = id
		s.ApplyGrant(table, g)
		return g, nil
	}

	_, err := store.Apply(ctx, "u1", keyed)
	require.NoError(t, err)
	_, err = store.Apply(ctx, "u1", keyed)
	assert.ErrorIs(t, err, progress.ErrDuplicateGrant)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 10, got.TotalPoints)
	assert.Equal(t, int64(1), got.Version)
}

func TestProgressStore_ConcurrentApply(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	const n = 100
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Apply(ctx, "u1", grantFn(t, table, "u1", 5, start))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5*n, got.TotalPoints)
	assert.Equal(t, table.Resolve(5*n), got.CurrentTier)
	assert.Equal(t, int64(n), got.Version)

	grants, err := store.ListGrants(ctx, "u1", shared.NewPagination(1, 500))
	require.NoError(t, err)
	assert.Len(t, grants, n)
	assert.Zero(t, store.lockCount())
}

func TestProgressStore_UserLocksAreReleased(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		userID := fmt.Sprintf("u%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Apply(ctx, userID, grantFn(t, table, userID, 5, start))
			assert.NoError(t, err)
			_, err = store.Reset(ctx, userID, start)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := store.ResetCounters(ctx, progress.WindowDaily)
	require.NoError(t, err)
	assert.Zero(t, store.lockCount())
}

func TestProgressStore_ListGrantsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	for i := 1; i <= 3; i++ {
		_, err := store.Apply(ctx, "u1", grantFn(t, table, "u1", i, start.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
	}

	grants, err := store.ListGrants(ctx, "u1", shared.NewPagination(1, 2))
	require.NoError(t, err)
	require.Len(t, grants, 2)
	assert.Equal(t, 3, grants[0].Points)
	assert.Equal(t, 2, grants[1].Points)

	grants, err = store.ListGrants(ctx, "u1", shared.NewPagination(2, 2))
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, 1, grants[0].Points)

	grants, err = store.ListGrants(ctx, "u1", shared.NewPagination(5, 2))
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestProgressStore_Reset(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	prev, err := store.Reset(ctx, "u1", start)
	require.NoError(t, err)
	assert.Nil(t, prev)

	_, err = store.Apply(ctx, "u1", grantFn(t, table, "u1", 150, start))
	require.NoError(t, err)

	prev, err = store.Reset(ctx, "u1", start.Add(time.Hour))
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, 150, prev.TotalPoints)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, got.TotalPoints)
	assert.Equal(t, 1, got.CurrentTier)

	grants, err := store.ListGrants(ctx, "u1", shared.DefaultPagination())
	require.NoError(t, err)
	assert.Empty(t, grants)
}

func TestProgressStore_AcknowledgeCelebration(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	err := store.AcknowledgeCelebration(ctx, "u1", 2, start)
	assert.ErrorIs(t, err, progress.ErrTierNotUnlocked)

	_, err = store.Apply(ctx, "u1", grantFn(t, table, "u1", 150, start))
	require.NoError(t, err)

	require.NoError(t, store.AcknowledgeCelebration(ctx, "u1", 2, start))
	assert.ErrorIs(t, store.AcknowledgeCelebration(ctx, "u1", 2, start), progress.ErrAlreadyAcknowledged)

	got, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got.PendingCelebrations())
}

func TestProgressStore_ResetCounters(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	for _, id := range []string{"a", "b"} {
		_, err := store.Apply(ctx, id, grantFn(t, table, id, 10, start))
		require.NoError(t, err)
	}

	n, err := store.ResetCounters(ctx, progress.WindowDaily)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.ResetCounters(ctx, progress.WindowDaily)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 0, got.DailyPoints)
	assert.Equal(t, 10, got.WeeklyPoints)
	assert.Equal(t, 10, got.TotalPoints)
}

func TestProgressStore_ListUserIDs(t *testing.T) {
	ctx := context.Background()
	store := NewProgressStore(clockwork.NewFakeClockAt(start))
	table := progress.DefaultTierTable()

	for _, id := range []string{"c", "a", "b"} {
		_, err := store.Apply(ctx, id, grantFn(t, table, id, 1, start))
		require.NoError(t, err)
	}

	ids, err := store.ListUserIDs(ctx, shared.NewPagination(1, 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestScoreStore_ListStale(t *testing.T) {
	ctx := context.Background()
	store := NewScoreStore()

	_, err := store.Get(ctx, "u1")
	assert.ErrorIs(t, err, impact.ErrScoreNotFound)

	require.NoError(t, store.Save(ctx, &impact.Score{UserID: "old", CalculatedAt: start.Add(-48 * time.Hour)}))
	require.NoError(t, store.Save(ctx, &impact.Score{UserID: "older", CalculatedAt: start.Add(-72 * time.Hour)}))
	require.NoError(t, store.Save(ctx, &impact.Score{UserID: "fresh", CalculatedAt: start}))

	ids, err := store.ListStale(ctx, start.Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"older", "old"}, ids)

	ids, err = store.ListStale(ctx, start.Add(-time.Hour), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"older"}, ids)
}

func TestAchievementStore_UnlockOnce(t *testing.T) {
	ctx := context.Background()
	store := NewAchievementStore()
	a := &impact.Achievement{UserID: "u1", AchievementID: "research_pioneer", UnlockedAt: start}

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Unlock(ctx, a)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	has, err := store.Has(ctx, "u1", "research_pioneer")
	require.NoError(t, err)
	assert.True(t, has)

	list, err := store.List(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestActivityStore_MentoringKeyedByMentor(t *testing.T) {
	ctx := context.Background()
	store := NewActivityStore()

	require.NoError(t, store.AddMentoring(ctx, impact.MentoringRecord{ID: "m1", MentorID: "mentor", MenteeID: "mentee", Active: true}))

	got, err := store.MentoringRecords(ctx, "mentor")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	got, err = store.MentoringRecords(ctx, "mentee")
	require.NoError(t, err)
	assert.Empty(t, got)
}
