package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
	"github.com/fiberfriends/companion-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CALCULATE IMPACT COMMAND
// Recomputes a user's impact score from every activity collection, overwrites
// the stored score and unlocks achievements. A failed read aborts the whole
// recomputation and leaves the previous score in place.
// ══════════════════════════════════════════════════════════════════════════════

// CalculateImpactCommand recomputes one user's score.
type CalculateImpactCommand struct {
	UserID        string
	CorrelationID string
}

// Validate validates the command.
func (c CalculateImpactCommand) Validate() error {
	_, err := shared.NewUserID(c.UserID)
	return err
}

// CalculateImpactResult is the freshly computed score and any new unlocks.
type CalculateImpactResult struct {
	Score           *impact.Score
	NewAchievements []*impact.Achievement
}

// CalculateImpactHandler handles CalculateImpactCommand.
type CalculateImpactHandler struct {
	source         impact.ActivitySource
	scorer         *impact.Scorer
	scores         impact.ScoreRepository
	achievements   impact.AchievementRepository
	rules          []impact.AchievementRule
	cache          impact.ScoreCache
	eventPublisher shared.EventPublisher
	clock          clockwork.Clock
	log            *logger.Logger
}

// CalculateImpactDeps groups the handler's collaborators. Cache and
// EventPublisher are optional.
type CalculateImpactDeps struct {
	Source         impact.ActivitySource
	Scorer         *impact.Scorer
	Scores         impact.ScoreRepository
	Achievements   impact.AchievementRepository
	Rules          []impact.AchievementRule
	Cache          impact.ScoreCache
	EventPublisher shared.EventPublisher
	Clock          clockwork.Clock
	Logger         *logger.Logger
}

// NewCalculateImpactHandler creates a new CalculateImpactHandler.
func NewCalculateImpactHandler(deps CalculateImpactDeps) *CalculateImpactHandler {
	if deps.EventPublisher == nil {
		deps.EventPublisher = shared.NopPublisher{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	if deps.Rules == nil {
		deps.Rules = impact.DefaultAchievementRules()
	}

	return &CalculateImpactHandler{
		source:         deps.Source,
		scorer:         deps.Scorer,
		scores:         deps.Scores,
		achievements:   deps.Achievements,
		rules:          deps.Rules,
		cache:          deps.Cache,
		eventPublisher: deps.EventPublisher,
		clock:          deps.Clock,
		log:            deps.Logger.With(logger.Component("calculate_impact")),
	}
}

// Handle executes the recomputation.
func (h *CalculateImpactHandler) Handle(ctx context.Context, cmd CalculateImpactCommand) (*CalculateImpactResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("calculate_impact: validation failed: %w", err)
	}
	userID := strings.TrimSpace(cmd.UserID)
	start := h.clock.Now()

	activities, err := h.fetch(ctx, userID)
	if err != nil {
		h.log.Error("activity read failed, score left unchanged", logger.UserID(userID), logger.Err(err))
		return nil, fmt.Errorf("calculate_impact: %w", err)
	}

	score := h.scorer.Calculate(userID, activities, h.clock.Now())

	if err := h.scores.Save(ctx, score); err != nil {
		h.log.Error("failed to save impact score", logger.UserID(userID), logger.Err(err))
		return nil, fmt.Errorf("calculate_impact: save score: %w", err)
	}

	unlocked, err := h.unlockAchievements(ctx, score)
	if err != nil {
		h.log.Error("failed to unlock achievements", logger.UserID(userID), logger.Err(err))
		return nil, fmt.Errorf("calculate_impact: %w", err)
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, score); err != nil {
			h.log.Warn("failed to cache impact score", logger.UserID(userID), logger.Err(err))
		}
	}

	h.publish(score, unlocked, cmd.CorrelationID)

	h.log.Debug("impact score calculated",
		logger.UserID(userID),
		logger.Int("total", score.Total),
		logger.Int("new_achievements", len(unlocked)),
		logger.Latency(h.clock.Since(start)),
	)

	return &CalculateImpactResult{Score: score, NewAchievements: unlocked}, nil
}

// fetch reads the five collections concurrently. The first failure cancels
// the remaining reads.
func (h *CalculateImpactHandler) fetch(ctx context.Context, userID string) (impact.Activities, error) {
	var a impact.Activities
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r, err := h.source.ResearchRecords(gctx, userID)
		if err != nil {
			return fmt.Errorf("read research records: %w", err)
		}
		a.Research = r
		return nil
	})
	g.Go(func() error {
		f, err := h.source.ForumActivity(gctx, userID)
		if err != nil {
			return fmt.Errorf("read forum activity: %w", err)
		}
		a.Forum = f
		return nil
	})
	g.Go(func() error {
		m, err := h.source.MentoringRecords(gctx, userID)
		if err != nil {
			return fmt.Errorf("read mentoring records: %w", err)
		}
		a.Mentoring = m
		return nil
	})
	g.Go(func() error {
		d, err := h.source.DailyRecords(gctx, userID)
		if err != nil {
			return fmt.Errorf("read daily records: %w", err)
		}
		a.Daily = d
		return nil
	})
	g.Go(func() error {
		c, err := h.source.CommunityContributions(gctx, userID)
		if err != nil {
			return fmt.Errorf("read community contributions: %w", err)
		}
		a.Community = c
		return nil
	})

	if err := g.Wait(); err != nil {
		return impact.Activities{}, err
	}
	return a, nil
}

// unlockAchievements unlocks each earned rule at most once. A duplicate
// unlock from a concurrent recomputation is not an error.
func (h *CalculateImpactHandler) unlockAchievements(ctx context.Context, score *impact.Score) ([]*impact.Achievement, error) {
	var unlocked []*impact.Achievement
	for _, rule := range impact.Earned(h.rules, score) {
		has, err := h.achievements.Has(ctx, score.UserID, rule.ID)
		if err != nil {
			return unlocked, fmt.Errorf("check achievement %s: %w", rule.ID, err)
		}
		if has {
			continue
		}

		a := impact.NewAchievement(score.UserID, rule, score.CalculatedAt)
		inserted, err := h.achievements.Unlock(ctx, a)
		if err != nil {
			return unlocked, fmt.Errorf("unlock achievement %s: %w", rule.ID, err)
		}
		if inserted {
			unlocked = append(unlocked, a)
		}
	}
	return unlocked, nil
}

func (h *CalculateImpactHandler) publish(score *impact.Score, unlocked []*impact.Achievement, correlationID string) {
	calculated := shared.NewImpactScoreCalculatedEvent(score.UserID,
		score.Research, score.Support, score.Knowledge, score.Mentoring, score.Consistency, score.Total)
	calculated.CurrentStreak = score.CurrentStreak
	calculated.LongestStreak = score.LongestStreak
	calculated.BaseEvent = calculated.BaseEvent.WithCorrelationID(correlationID)
	if err := h.eventPublisher.Publish(calculated); err != nil {
		h.log.Warn("failed to publish impact event", logger.UserID(score.UserID), logger.Err(err))
	}

	for _, a := range unlocked {
		ev := shared.NewAchievementUnlockedEvent(a.UserID, a.AchievementID, a.Name, a.Category)
		ev.BaseEvent = ev.BaseEvent.WithCorrelationID(correlationID)
		if err := h.eventPublisher.Publish(ev); err != nil {
			h.log.Warn("failed to publish achievement event", logger.UserID(a.UserID), logger.AchievementID(a.AchievementID), logger.Err(err))
		}
	}
}
