package command

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/internal/infrastructure/persistence/memory"
)

var now = time.Date(2026, 6, 15, 14, 0, 0, 0, time.UTC)

func threeTiers(t *testing.T) *progress.TierTable {
	t.Helper()
	table, err := progress.NewTierTable([]progress.TierDefinition{
		{Level: 1, Name: "Seedling", PointsRequired: 0, Features: []string{"basic_tracking"}},
		{Level: 2, Name: "Sprout", PointsRequired: 100, Features: []string{"forum_access"}},
		{Level: 3, Name: "Bloom", PointsRequired: 250, Features: []string{"peer_matching"}},
	})
	require.NoError(t, err)
	return table
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

// conflictingRepo fails the first n Apply calls with a concurrent modification.
type conflictingRepo struct {
	*memory.ProgressStore
	remaining atomic.Int32
	calls     atomic.Int32
}

func (r *conflictingRepo) Apply(ctx context.Context, userID string, fn progress.GrantFunc) (*progress.State, error) {
	r.calls.Add(1)
	if r.remaining.Add(-1) >= 0 {
		return nil, shared.ErrConcurrentModification
	}
	return r.ProgressStore.Apply(ctx, userID, fn)
}

// brokenRepo is a progress store that cannot be reached.
type brokenRepo struct {
	*memory.ProgressStore
}

var errStoreDown = errors.New("connection refused")

func (r brokenRepo) Apply(context.Context, string, progress.GrantFunc) (*progress.State, error) {
	return nil, shared.Unavailable("progress", "Apply", errStoreDown)
}

// failingSource fails one collection read.
type failingSource struct {
	*memory.ActivityStore
}

func (failingSource) ForumActivity(context.Context, string) ([]impact.ForumActivity, error) {
	return nil, shared.Unavailable("impact", "ForumActivity", errStoreDown)
}

type fixture struct {
	clock        *clockwork.FakeClock
	progress     *memory.ProgressStore
	activities   *memory.ActivityStore
	scores       *memory.ScoreStore
	achievements *memory.AchievementStore
	publisher    *recordingPublisher
	grants       *GrantPointsHandler
	impact       *CalculateImpactHandler
}

func newFixture(t *testing.T, tiers *progress.TierTable) *fixture {
	t.Helper()
	f := &fixture{
		clock:        clockwork.NewFakeClockAt(now),
		activities:   memory.NewActivityStore(),
		scores:       memory.NewScoreStore(),
		achievements: memory.NewAchievementStore(),
		publisher:    &recordingPublisher{},
	}
	f.progress = memory.NewProgressStore(f.clock)
	f.grants = NewGrantPointsHandler(f.progress, tiers, progress.DefaultPointValues(), f.publisher, f.clock, nil, DefaultGrantPointsHandlerConfig())

	scorer, err := impact.NewScorer(impact.DefaultConfig(), nil)
	require.NoError(t, err)
	f.impact = NewCalculateImpactHandler(CalculateImpactDeps{
		Source:         f.activities,
		Scorer:         scorer,
		Scores:         f.scores,
		Achievements:   f.achievements,
		EventPublisher: f.publisher,
		Clock:          f.clock,
	})
	return f
}
