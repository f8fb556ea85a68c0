package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
)

// ActivityStore implements impact.ActivitySource and impact.ActivityRecorder.
type ActivityStore struct {
	mu        sync.RWMutex
	research  map[string][]impact.ResearchRecord
	forum     map[string][]impact.ForumActivity
	mentoring map[string][]impact.MentoringRecord // keyed by mentor
	daily     map[string][]impact.DailyRecord
	community map[string][]impact.CommunityContribution
}

// NewActivityStore creates an empty store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		research:  make(map[string][]impact.ResearchRecord),
		forum:     make(map[string][]impact.ForumActivity),
		mentoring: make(map[string][]impact.MentoringRecord),
		daily:     make(map[string][]impact.DailyRecord),
		community: make(map[string][]impact.CommunityContribution),
	}
}

var (
	_ impact.ActivitySource   = (*ActivityStore)(nil)
	_ impact.ActivityRecorder = (*ActivityStore)(nil)
)

// ResearchRecords implements impact.ActivitySource.
func (s *ActivityStore) ResearchRecords(ctx context.Context, userID string) ([]impact.ResearchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]impact.ResearchRecord(nil), s.research[userID]...), nil
}

// ForumActivity implements impact.ActivitySource.
func (s *ActivityStore) ForumActivity(ctx context.Context, userID string) ([]impact.ForumActivity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]impact.ForumActivity(nil), s.forum[userID]...), nil
}

// MentoringRecords implements impact.ActivitySource.
func (s *ActivityStore) MentoringRecords(ctx context.Context, userID string) ([]impact.MentoringRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]impact.MentoringRecord(nil), s.mentoring[userID]...), nil
}

// DailyRecords implements impact.ActivitySource.
func (s *ActivityStore) DailyRecords(ctx context.Context, userID string) ([]impact.DailyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]impact.DailyRecord(nil), s.daily[userID]...), nil
}

// CommunityContributions implements impact.ActivitySource.
func (s *ActivityStore) CommunityContributions(ctx context.Context, userID string) ([]impact.CommunityContribution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]impact.CommunityContribution(nil), s.community[userID]...), nil
}

// AddResearch implements impact.ActivityRecorder.
func (s *ActivityStore) AddResearch(ctx context.Context, r impact.ResearchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.research[r.UserID] = append(s.research[r.UserID], r)
	return ctx.Err()
}

// AddForum implements impact.ActivityRecorder.
func (s *ActivityStore) AddForum(ctx context.Context, f impact.ForumActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forum[f.UserID] = append(s.forum[f.UserID], f)
	return ctx.Err()
}

// AddMentoring implements impact.ActivityRecorder.
func (s *ActivityStore) AddMentoring(ctx context.Context, m impact.MentoringRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mentoring[m.MentorID] = append(s.mentoring[m.MentorID], m)
	return ctx.Err()
}

// AddDaily implements impact.ActivityRecorder.
func (s *ActivityStore) AddDaily(ctx context.Context, d impact.DailyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.daily[d.UserID] = append(s.daily[d.UserID], d)
	return ctx.Err()
}

// AddCommunity implements impact.ActivityRecorder.
func (s *ActivityStore) AddCommunity(ctx context.Context, c impact.CommunityContribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.community[c.UserID] = append(s.community[c.UserID], c)
	return ctx.Err()
}

// ScoreStore implements impact.ScoreRepository.
type ScoreStore struct {
	mu     sync.RWMutex
	scores map[string]impact.Score
}

// NewScoreStore creates an empty store.
func NewScoreStore() *ScoreStore {
	return &ScoreStore{scores: make(map[string]impact.Score)}
}

var _ impact.ScoreRepository = (*ScoreStore)(nil)

// Get implements impact.ScoreRepository.
func (s *ScoreStore) Get(ctx context.Context, userID string) (*impact.Score, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scores[userID]
	if !ok {
		return nil, impact.ErrScoreNotFound
	}
	return &sc, nil
}

// Save implements impact.ScoreRepository.
func (s *ScoreStore) Save(ctx context.Context, score *impact.Score) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scores[score.UserID] = *score
	return nil
}

// ListStale implements impact.ScoreRepository.
func (s *ScoreStore) ListStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	stale := make([]impact.Score, 0)
	for _, sc := range s.scores {
		if sc.CalculatedAt.Before(before) {
			stale = append(stale, sc)
		}
	}
	s.mu.RUnlock()

	sort.Slice(stale, func(i, j int) bool {
		if stale[i].CalculatedAt.Equal(stale[j].CalculatedAt) {
			return stale[i].UserID < stale[j].UserID
		}
		return stale[i].CalculatedAt.Before(stale[j].CalculatedAt)
	})
	if limit > 0 && len(stale) > limit {
		stale = stale[:limit]
	}

	ids := make([]string, 0, len(stale))
	for _, sc := range stale {
		ids = append(ids, sc.UserID)
	}
	return ids, nil
}

// AchievementStore implements impact.AchievementRepository.
type AchievementStore struct {
	mu       sync.Mutex
	unlocked map[string]map[string]impact.Achievement
}

// NewAchievementStore creates an empty store.
func NewAchievementStore() *AchievementStore {
	return &AchievementStore{unlocked: make(map[string]map[string]impact.Achievement)}
}

var _ impact.AchievementRepository = (*AchievementStore)(nil)

// Has implements impact.AchievementRepository.
func (s *AchievementStore) Has(ctx context.Context, userID, achievementID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.unlocked[userID][achievementID]
	return ok, nil
}

// Unlock implements impact.AchievementRepository.
func (s *AchievementStore) Unlock(ctx context.Context, a *impact.Achievement) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byID, ok := s.unlocked[a.UserID]
	if !ok {
		byID = make(map[string]impact.Achievement)
		s.unlocked[a.UserID] = byID
	}
	if _, exists := byID[a.AchievementID]; exists {
		return false, nil
	}
	byID[a.AchievementID] = *a
	return true, nil
}

// List implements impact.AchievementRepository.
func (s *AchievementStore) List(ctx context.Context, userID string) ([]*impact.Achievement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	out := make([]*impact.Achievement, 0, len(s.unlocked[userID]))
	for _, a := range s.unlocked[userID] {
		a := a
		out = append(out, &a)
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].UnlockedAt.Equal(out[j].UnlockedAt) {
			return out[i].AchievementID < out[j].AchievementID
		}
		return out[i].UnlockedAt.Before(out[j].UnlockedAt)
	})
	return out, nil
}
