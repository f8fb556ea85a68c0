// Package memory provides in-process implementations of the engine's
// repositories. They back local development and tests, and serialize each
// user's writes behind a per-user mutex that is dropped once no call holds
// or waits on it. Data is never evicted and lives as long as the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// ProgressStore implements progress.Repository.
type ProgressStore struct {
	mu     sync.Mutex
	locks  map[string]*userLock
	states map[string]*progress.State
	grants map[string][]*progress.PointGrant
	clock  clockwork.Clock
}

// NewProgressStore creates an empty store.
func NewProgressStore(clock clockwork.Clock) *ProgressStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &ProgressStore{
		locks:  make(map[string]*userLock),
		states: make(map[string]*progress.State),
		grants: make(map[string][]*progress.PointGrant),
		clock:  clock,
	}
}

var _ progress.Repository = (*ProgressStore)(nil)

type userLock struct {
	sync.Mutex
	refs int
}

// lockUser blocks until the caller owns userID and returns the release func.
func (s *ProgressStore) lockUser(userID string) func() {
	s.mu.Lock()
	l, ok := s.locks[userID]
	if !ok {
		l = &userLock{}
		s.locks[userID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, userID)
		}
		s.mu.Unlock()
	}
}

// lockCount reports how many per-user locks are live.
func (s *ProgressStore) lockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}

func (s *ProgressStore) load(userID string) (*progress.State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[userID]
	if !ok {
		return nil, false
	}
	return st.Clone(), true
}

// Get implements progress.Repository.
func (s *ProgressStore) Get(ctx context.Context, userID string) (*progress.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	st, ok := s.load(userID)
	if !ok {
		return nil, progress.ErrProgressNotFound
	}
	return st, nil
}

// Apply implements progress.Repository.
func (s *ProgressStore) Apply(ctx context.Context, userID string, fn progress.GrantFunc) (*progress.State, error) {
	defer s.lockUser(userID)()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	work, ok := s.load(userID)
	if !ok {
		work = progress.NewState(userID, s.clock.Now())
	}

	grant, err := fn(work)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if grant != nil && s.hasGrant(userID, grant.ID) {
		s.mu.Unlock()
		return nil, progress.ErrDuplicateGrant
	}
	s.states[userID] = work.Clone()
	if grant != nil {
		g := *grant
		s.grants[userID] = append(s.grants[userID], &g)
	}
	s.mu.Unlock()

	return work, nil
}

// hasGrant must be called with s.mu held.
func (s *ProgressStore) hasGrant(userID, grantID string) bool {
	for _, g := range s.grants[userID] {
		if g.ID == grantID {
			return true
		}
	}
	return false
}

// Reset implements progress.Repository.
func (s *ProgressStore) Reset(ctx context.Context, userID string, now time.Time) (*progress.State, error) {
	defer s.lockUser(userID)()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.states[userID]
	s.states[userID] = progress.NewState(userID, now)
	delete(s.grants, userID)
	return prev.Clone(), nil
}

// AcknowledgeCelebration implements progress.Repository.
func (s *ProgressStore) AcknowledgeCelebration(ctx context.Context, userID string, tier int, at time.Time) error {
	defer s.lockUser(userID)()

	if err := ctx.Err(); err != nil {
		return err
	}

	work, ok := s.load(userID)
	if !ok {
		work = progress.NewState(userID, s.clock.Now())
	}
	if err := work.Acknowledge(tier, at); err != nil {
		return err
	}

	s.mu.Lock()
	s.states[userID] = work
	s.mu.Unlock()
	return nil
}

// ListGrants implements progress.Repository.
func (s *ProgressStore) ListGrants(ctx context.Context, userID string, page shared.Pagination) ([]*progress.PointGrant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	all := s.grants[userID]
	out := make([]*progress.PointGrant, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		g := *all[i]
		out = append(out, &g)
	}
	s.mu.Unlock()

	return paginate(out, page), nil
}

// ResetCounters implements progress.Repository.
func (s *ProgressStore) ResetCounters(ctx context.Context, window progress.Window) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	var touched int64
	for _, id := range ids {
		unlock := s.lockUser(id)
		s.mu.Lock()
		st := s.states[id]
		before := counter(st, window)
		st.ResetWindow(window)
		s.mu.Unlock()
		unlock()
		if before != 0 {
			touched++
		}
	}
	return touched, nil
}

// ListUserIDs implements progress.Repository.
func (s *ProgressStore) ListUserIDs(ctx context.Context, page shared.Pagination) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	ids := make([]string, 0, len(s.states))
	for id := range s.states {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return paginate(ids, page), nil
}

func counter(st *progress.State, w progress.Window) int {
	switch w {
	case progress.WindowDaily:
		return st.DailyPoints
	case progress.WindowWeekly:
		return st.WeeklyPoints
	case progress.WindowMonthly:
		return st.MonthlyPoints
	}
	return 0
}

func paginate[T any](items []T, page shared.Pagination) []T {
	offset := page.Offset()
	if offset >= len(items) {
		return []T{}
	}
	end := min(offset+page.Limit(), len(items))
	return items[offset:end]
}
