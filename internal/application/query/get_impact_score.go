package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fiberfriends/companion-engine/internal/application/command"
	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET IMPACT SCORE QUERY
// Reads through the cache and the score store. A score older than the
// staleness window, or no score at all, triggers a full recomputation.
// ══════════════════════════════════════════════════════════════════════════════

// Score sources reported in ImpactScoreDTO.Source.
const (
	SourceCache      = "cache"
	SourceStore      = "store"
	SourceRecomputed = "recomputed"
)

// GetImpactScoreQuery asks for a user's impact score.
type GetImpactScoreQuery struct {
	UserID string

	// ForceRefresh skips the cache and store and recomputes.
	ForceRefresh bool

	// IncludeAchievements loads the user's unlocked achievements.
	IncludeAchievements bool
}

// AchievementDTO is one unlocked achievement.
type AchievementDTO struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// ImpactScoreDTO is the read model for impact screens.
type ImpactScoreDTO struct {
	UserID        string           `json:"user_id"`
	Research      float64          `json:"research"`
	Support       float64          `json:"support"`
	Knowledge     float64          `json:"knowledge"`
	Mentoring     float64          `json:"mentoring"`
	Consistency   float64          `json:"consistency"`
	Total         int              `json:"total"`
	CurrentStreak int              `json:"current_streak"`
	LongestStreak int              `json:"longest_streak"`
	CalculatedAt  time.Time        `json:"calculated_at"`
	Source        string           `json:"source"`
	Achievements  []AchievementDTO `json:"achievements,omitempty"`
}

// GetImpactScoreHandler handles GetImpactScoreQuery.
type GetImpactScoreHandler struct {
	scores       impact.ScoreRepository
	achievements impact.AchievementRepository
	cache        impact.ScoreCache
	calculator   *command.CalculateImpactHandler
	staleAfter   time.Duration
	clock        clockwork.Clock
	log          *logger.Logger
}

// NewGetImpactScoreHandler creates a new GetImpactScoreHandler. cache may be
// nil. A zero staleAfter disables recomputation of stored scores.
func NewGetImpactScoreHandler(
	scores impact.ScoreRepository,
	achievements impact.AchievementRepository,
	cache impact.ScoreCache,
	calculator *command.CalculateImpactHandler,
	staleAfter time.Duration,
	clock clockwork.Clock,
	log *logger.Logger,
) *GetImpactScoreHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &GetImpactScoreHandler{
		scores:       scores,
		achievements: achievements,
		cache:        cache,
		calculator:   calculator,
		staleAfter:   staleAfter,
		clock:        clock,
		log:          log.With(logger.Component("get_impact_score")),
	}
}

// Handle executes the query.
func (h *GetImpactScoreHandler) Handle(ctx context.Context, q GetImpactScoreQuery) (*ImpactScoreDTO, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("get_impact_score: %w", err)
	}
	userID := strings.TrimSpace(q.UserID)

	score, source, err := h.load(ctx, userID, q.ForceRefresh)
	if err != nil {
		return nil, fmt.Errorf("get_impact_score: %w", err)
	}

	dto := scoreDTO(score, source)
	if q.IncludeAchievements {
		list, err := h.achievements.List(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("get_impact_score: list achievements: %w", err)
		}
		for _, a := range list {
			dto.Achievements = append(dto.Achievements, AchievementDTO{
				ID:         a.AchievementID,
				Name:       a.Name,
				Category:   a.Category,
				UnlockedAt: a.UnlockedAt,
			})
		}
	}
	return dto, nil
}

func (h *GetImpactScoreHandler) load(ctx context.Context, userID string, force bool) (*impact.Score, string, error) {
	now := h.clock.Now()

	if !force && h.cache != nil {
		score, err := h.cache.Get(ctx, userID)
		switch {
		case err == nil && !score.IsStale(now, h.staleAfter):
			return score, SourceCache, nil
		case err != nil && !errors.Is(err, impact.ErrScoreNotFound):
			h.log.Warn("impact cache read failed", logger.UserID(userID), logger.Err(err))
		}
	}

	if !force {
		score, err := h.scores.Get(ctx, userID)
		switch {
		case err == nil && !score.IsStale(now, h.staleAfter):
			if h.cache != nil {
				if err := h.cache.Set(ctx, score); err != nil {
					h.log.Warn("failed to cache impact score", logger.UserID(userID), logger.Err(err))
				}
			}
			return score, SourceStore, nil
		case err != nil && !errors.Is(err, impact.ErrScoreNotFound):
			return nil, "", err
		}
	}

	result, err := h.calculator.Handle(ctx, command.CalculateImpactCommand{UserID: userID})
	if err != nil {
		return nil, "", err
	}
	return result.Score, SourceRecomputed, nil
}

func scoreDTO(s *impact.Score, source string) *ImpactScoreDTO {
	return &ImpactScoreDTO{
		UserID:        s.UserID,
		Research:      s.Research,
		Support:       s.Support,
		Knowledge:     s.Knowledge,
		Mentoring:     s.Mentoring,
		Consistency:   s.Consistency,
		Total:         s.Total,
		CurrentStreak: s.CurrentStreak,
		LongestStreak: s.LongestStreak,
		CalculatedAt:  s.CalculatedAt,
		Source:        source,
	}
}
