package query

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/memory"
)

var now = time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

type unreachableRepo struct {
	*memory.ProgressStore
}

func (unreachableRepo) Get(context.Context, string) (*progress.State, error) {
	return nil, shared.Unavailable("progress", "Get", context.DeadlineExceeded)
}

type mapCache struct {
	mu     sync.Mutex
	scores map[string]impact.Score
}

func newMapCache() *mapCache { return &mapCache{scores: map[string]impact.Score{}} }

func (c *mapCache) Get(_ context.Context, userID string) (*impact.Score, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.scores[userID]
	if !ok {
		return nil, impact.ErrScoreNotFound
	}
	return &s, nil
}

func (c *mapCache) Set(_ context.Context, s *impact.Score) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[s.UserID] = *s
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.scores, userID)
	return nil
}

func TestGetTierProgress_UnknownUserIsTierOne(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	h := NewGetTierProgressHandler(memory.NewProgressStore(clock), progress.DefaultTierTable(), clock)

	dto, err := h.Handle(context.Background(), GetTierProgressQuery{UserID: "ghost"})
	require.NoError(t, err)

	assert.False(t, dto.Exists)
	assert.Equal(t, 0, dto.TotalPoints)
	assert.Equal(t, 1, dto.CurrentTier.Level)
	require.NotNil(t, dto.NextTier)
	assert.Equal(t, 2, dto.NextTier.Level)
	assert.Empty(t, dto.PendingCelebrations)
	assert.Equal(t, progress.DefaultTierTable().UnlockedFeatures(1), dto.UnlockedFeatures)
}

func TestGetTierProgress_StoreUnavailable(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	repo := unreachableRepo{memory.NewProgressStore(clock)}
	h := NewGetTierProgressHandler(repo, progress.DefaultTierTable(), clock)

	_, err := h.Handle(context.Background(), GetTierProgressQuery{UserID: "u1"})
	require.Error(t, err)
	assert.True(t, shared.IsUnavailable(err))
}

func TestGetTierProgress_AfterGrant(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	repo := memory.NewProgressStore(clock)
	tiers := progress.DefaultTierTable()
	grants := command.NewGrantPointsHandler(repo, tiers, progress.DefaultPointValues(), nil, clock, nil, command.DefaultGrantPointsHandlerConfig())

	second, _ := tiers.Tier(2)
	_, err := grants.Handle(ctx, command.GrantPointsCommand{UserID: "u1", Points: second.PointsRequired + 5, Action: "x", Category: progress.CategoryEngagement})
	require.NoError(t, err)

	dto, err := NewGetTierProgressHandler(repo, tiers, clock).Handle(ctx, GetTierProgressQuery{UserID: "u1"})
	require.NoError(t, err)

	assert.True(t, dto.Exists)
	assert.Equal(t, 2, dto.CurrentTier.Level)
	assert.Equal(t, 5, dto.PointsInCurrentTier)
	require.Len(t, dto.PendingCelebrations, 1)
	assert.Equal(t, 2, dto.PendingCelebrations[0].Tier)
	assert.Equal(t, second.Name, dto.PendingCelebrations[0].Name)
}

func TestGetTierProgress_RejectsEmptyUser(t *testing.T) {
	clock := clockwork.NewFakeClockAt(now)
	h := NewGetTierProgressHandler(memory.NewProgressStore(clock), progress.DefaultTierTable(), clock)

	_, err := h.Handle(context.Background(), GetTierProgressQuery{UserID: ""})
	assert.True(t, shared.IsValidation(err))
}

func TestGetPointHistory(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(now)
	repo := memory.NewProgressStore(clock)
	grants := command.NewGrantPointsHandler(repo, progress.DefaultTierTable(), progress.DefaultPointValues(), nil, clock, nil, command.DefaultGrantPointsHandlerConfig())

	for _, action := range []string{progress.ActionDailyCheckin, progress.ActionForumPost, progress.ActionStudyEnrolled} {
		_, err := grants.HandleAction(ctx, command.GrantActionCommand{UserID: "u1", Action: action})
		require.NoError(t, err)
		clock.Advance(time.Minute)
	}

	h := NewGetPointHistoryHandler(repo)
	list, err := h.Handle(ctx, GetPointHistoryQuery{UserID: "u1", Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, progress.ActionStudyEnrolled, list[0].Action)
	assert.Equal(t, "research", list[0].Category)
	assert.Equal(t, progress.ActionForumPost, list[1].Action)

	empty, err := h.Handle(ctx, GetPointHistoryQuery{UserID: "nobody"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListTiers(t *testing.T) {
	tiers := ListTiers(progress.DefaultTierTable())
	require.Len(t, tiers, 10)
	assert.Equal(t, 0, tiers[0].PointsRequired)
	for i := 1; i < len(tiers); i++ {
		assert.Greater(t, tiers[i].PointsRequired, tiers[i-1].PointsRequired)
	}
}

type impactFixture struct {
	clock   *clockwork.FakeClock
	acts    *memory.ActivityStore
	scores  *memory.ScoreStore
	cache   *mapCache
	handler *GetImpactScoreHandler
}

func newImpactFixture(t *testing.T, staleAfter time.Duration) *impactFixture {
	t.Helper()
	f := &impactFixture{
		clock:  clockwork.NewFakeClockAt(now),
		acts:   memory.NewActivityStore(),
		scores: memory.NewScoreStore(),
		cache:  newMapCache(),
	}
	scorer, err := impact.NewScorer(impact.DefaultConfig(), nil)
	require.NoError(t, err)
	achievements := memory.NewAchievementStore()
	calc := command.NewCalculateImpactHandler(command.CalculateImpactDeps{
		Source:       f.acts,
		Scorer:       scorer,
		Scores:       f.scores,
		Achievements: achievements,
		Cache:        f.cache,
		Clock:        f.clock,
	})
	f.handler = NewGetImpactScoreHandler(f.scores, achievements, f.cache, calc, staleAfter, f.clock, nil)
	return f
}

func TestGetImpactScore_RecomputesWhenMissing(t *testing.T) {
	ctx := context.Background()
	f := newImpactFixture(t, time.Hour)
	require.NoError(t, f.acts.AddResearch(ctx, impact.ResearchRecord{ID: "r1", UserID: "u1", Type: impact.ResearchConsent, OccurredAt: now}))

	dto, err := f.handler.Handle(ctx, GetImpactScoreQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, SourceRecomputed, dto.Source)
	assert.Equal(t, 50.0, dto.Research)

	dto, err = f.handler.Handle(ctx, GetImpactScoreQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, SourceCache, dto.Source)
}

func TestGetImpactScore_StoreFillsCache(t *testing.T) {
	ctx := context.Background()
	f := newImpactFixture(t, time.Hour)
	require.NoError(t, f.scores.Save(ctx, &impact.Score{UserID: "u1", Total: 42, CalculatedAt: now.Add(-time.Minute)}))

	dto, err := f.handler.Handle(ctx, GetImpactScoreQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, SourceStore, dto.Source)
	assert.Equal(t, 42, dto.Total)

	cached, err := f.cache.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 42, cached.Total)
}

func TestGetImpactScore_StaleScoreIsRecomputed(t *testing.T) {
	ctx := context.Background()
	f := newImpactFixture(t, time.Hour)
	require.NoError(t, f.scores.Save(ctx, &impact.Score{UserID: "u1", Total: 42, CalculatedAt: now.Add(-2 * time.Hour)}))

	dto, err := f.handler.Handle(ctx, GetImpactScoreQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, SourceRecomputed, dto.Source)
	assert.Equal(t, 0, dto.Total)
	assert.Equal(t, now, dto.CalculatedAt)
}

func TestGetImpactScore_ForceRefreshWithAchievements(t *testing.T) {
	ctx := context.Background()
	f := newImpactFixture(t, 0)
	for i := 0; i < 6; i++ {
		require.NoError(t, f.acts.AddResearch(ctx, impact.ResearchRecord{
			ID: "r", UserID: "u1", Type: impact.ResearchStudyEnrolled, OccurredAt: now.AddDate(0, -i, 0),
		}))
	}
	require.NoError(t, f.cache.Set(ctx, &impact.Score{UserID: "u1", Total: 1, CalculatedAt: now}))

	dto, err := f.handler.Handle(ctx, GetImpactScoreQuery{UserID: "u1", ForceRefresh: true, IncludeAchievements: true})
	require.NoError(t, err)
	assert.Equal(t, SourceRecomputed, dto.Source)
	require.NotEmpty(t, dto.Achievements)
	assert.Equal(t, "research_pioneer", dto.Achievements[0].ID)
}
