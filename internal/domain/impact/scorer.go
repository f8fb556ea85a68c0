package impact

import (
	"time"

	"github.com/fiberfriends/companion-engine/pkg/timeutil"
)

// Scorer computes impact scores. It is pure: the same activities and clock
// reading always give the same score.
type Scorer struct {
	cfg Config
	cal *timeutil.Calendar
}

// NewScorer creates a Scorer. The calendar decides local day boundaries for
// streaks and research months.
func NewScorer(cfg Config, cal *timeutil.Calendar) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cal == nil {
		cal = timeutil.UTC()
	}
	return &Scorer{cfg: cfg, cal: cal}, nil
}

// Config returns the scorer's configuration.
func (s *Scorer) Config() Config {
	return s.cfg
}

// Calculate recomputes every sub-score from scratch.
func (s *Scorer) Calculate(userID string, a Activities, now time.Time) *Score {
	streaks := ComputeStreaks(s.cal, a.Daily, now, s.cfg.StreakLookbackDays)

	score := &Score{
		UserID:        userID,
		Research:      s.research(a.Research),
		Support:       s.support(a.Forum, a.Community),
		Knowledge:     s.knowledge(a.Forum),
		Mentoring:     s.mentoring(userID, a.Mentoring),
		Consistency:   s.consistency(a.Daily, streaks.Current),
		CurrentStreak: streaks.Current,
		LongestStreak: streaks.Longest,
		CalculatedAt:  now.UTC(),
	}
	score.Total = s.cfg.Weights.Total(score.Research, score.Support, score.Knowledge, score.Mentoring, score.Consistency)
	return score
}

// ForumValue is the worth of one forum item: base points plus helpful votes.
func (s *Scorer) ForumValue(f ForumActivity) float64 {
	return s.cfg.ForumBasePoints[f.Kind] + s.cfg.HelpfulVotePoints*float64(max(f.HelpfulVotes, 0))
}

func (s *Scorer) research(records []ResearchRecord) float64 {
	var sum float64
	months := make(map[string]struct{})
	for _, r := range records {
		sum += s.cfg.ResearchPoints[r.Type]
		months[s.cal.MonthKey(r.OccurredAt)] = struct{}{}
	}
	if len(months) > s.cfg.ResearchBonusMonths {
		sum *= 1 + s.cfg.ResearchConsistencyBonus
	}
	return sum
}

func (s *Scorer) support(forum []ForumActivity, community []CommunityContribution) float64 {
	var sum float64
	for _, f := range forum {
		if f.HelpfulVotes >= s.cfg.SupportMinVotes {
			sum += s.ForumValue(f)
		}
		if f.Kind == ForumPost && f.HelpfulVotes >= s.cfg.QualityMinVotes {
			sum += s.cfg.QualityBonus
		}
	}
	for _, c := range community {
		sum += float64(max(c.Points, 0))
	}
	return sum
}

func (s *Scorer) knowledge(forum []ForumActivity) float64 {
	var sum float64
	for _, f := range forum {
		if f.Category == CategoryEducational || f.HelpfulVotes >= s.cfg.KnowledgeMinVotes {
			sum += s.ForumValue(f)
		}
	}
	return sum
}

func (s *Scorer) mentoring(userID string, records []MentoringRecord) float64 {
	var sum float64
	count := 0
	for _, r := range records {
		if !r.Active || r.MentorID != userID {
			continue
		}
		sum += s.cfg.MentoringPoints[r.Kind]
		count++
	}
	if count > s.cfg.MentoringBonusRecords {
		sum *= 1 + s.cfg.MentoringBonus
	}
	return sum
}

func (s *Scorer) consistency(daily []DailyRecord, currentStreak int) float64 {
	return s.cfg.DailyRecordPoints*float64(len(daily)) + s.cfg.StreakDayPoints*float64(currentStreak)
}
