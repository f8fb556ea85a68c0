package eventhandler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/memory"
	"github.com/fiberfriends/companion-engine/pkg/timeutil"
)

type fixture struct {
	clock   *clockwork.FakeClock
	store   *memory.ProgressStore
	handler *OnImpactCalculatedHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 5, 20, 18, 0, 0, 0, time.UTC))
	store := memory.NewProgressStore(clock)
	grants := command.NewGrantPointsHandler(store, progress.DefaultTierTable(), progress.DefaultPointValues(),
		nil, clock, nil, command.DefaultGrantPointsHandlerConfig())
	return &fixture{
		clock:   clock,
		store:   store,
		handler: NewOnImpactCalculatedHandler(grants, store, timeutil.NewCalendar(time.UTC, clock), nil, nil),
	}
}

func calculated(userID string, streak int) shared.ImpactScoreCalculatedEvent {
	ev := shared.NewImpactScoreCalculatedEvent(userID, 0, 0, 0, 0, float64(streak*10), streak)
	ev.CurrentStreak = streak
	ev.LongestStreak = streak
	return ev
}

func actions(t *testing.T, store *memory.ProgressStore, userID string) []string {
	t.Helper()
	grants, err := store.ListGrants(context.Background(), userID, shared.DefaultPagination())
	require.NoError(t, err)
	out := make([]string, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.Action)
	}
	return out
}

func TestOnImpactCalculated_ShortStreakGrantsNothing(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Handle(calculated("u1", 6)))
	assert.Empty(t, actions(t, f.store, "u1"))
}

func TestOnImpactCalculated_WeekStreakGrantedOncePerRun(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.handler.Handle(calculated("u1", 7)))
	require.NoError(t, f.handler.Handle(calculated("u1", 7)))

	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.handler.Handle(calculated("u1", 8)))

	assert.Equal(t, []string{progress.ActionWeekStreak}, actions(t, f.store, "u1"))

	state, err := f.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, state.TotalPoints)
}

func TestOnImpactCalculated_NewRunEarnsAgain(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Handle(calculated("u1", 7)))

	// A gap breaks the run; seven more days start a new one.
	f.clock.Advance(10 * 24 * time.Hour)
	require.NoError(t, f.handler.Handle(calculated("u1", 7)))

	assert.Equal(t, []string{progress.ActionWeekStreak, progress.ActionWeekStreak}, actions(t, f.store, "u1"))
}

func TestOnImpactCalculated_MonthStreakEarnsBoth(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Handle(calculated("u1", 30)))
	assert.ElementsMatch(t, []string{progress.ActionWeekStreak, progress.ActionMonthStreak}, actions(t, f.store, "u1"))
}

func TestOnImpactCalculated_IgnoresOtherEvents(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.handler.Handle(shared.NewProgressResetEvent("u1", 10, 1)))
	assert.Empty(t, actions(t, f.store, "u1"))
}

// emptyHistory hides earlier grants, as when two recomputes read the history
// before either has written.
type emptyHistory struct{}

func (emptyHistory) ListGrants(context.Context, string, shared.Pagination) ([]*progress.PointGrant, error) {
	return nil, nil
}

func TestOnImpactCalculated_ConcurrentRecomputesGrantOnce(t *testing.T) {
	f := newFixture(t)
	grants := command.NewGrantPointsHandler(f.store, progress.DefaultTierTable(), progress.DefaultPointValues(),
		nil, f.clock, nil, command.DefaultGrantPointsHandlerConfig())
	h := NewOnImpactCalculatedHandler(grants, emptyHistory{}, timeutil.NewCalendar(time.UTC, f.clock), nil, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.Handle(calculated("u1", 7))
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, []string{progress.ActionWeekStreak}, actions(t, f.store, "u1"))
	state, err := f.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 50, state.TotalPoints)
}
