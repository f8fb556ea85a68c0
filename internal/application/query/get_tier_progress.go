// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TIER PROGRESS QUERY
// A user without progress is a valid tier-1 user, never an error; only an
// unreachable store fails the query.
// ══════════════════════════════════════════════════════════════════════════════

// GetTierProgressQuery asks for one user's progression.
type GetTierProgressQuery struct {
	UserID string
}

// Validate checks the query parameters.
func (q GetTierProgressQuery) Validate() error {
	_, err := shared.NewUserID(q.UserID)
	return err
}

// TierDTO describes one tier.
type TierDTO struct {
	Level          int      `json:"level"`
	Name           string   `json:"name"`
	PointsRequired int      `json:"points_required"`
	Features       []string `json:"features"`
}

// CelebrationDTO is a tier unlock awaiting its celebration.
type CelebrationDTO struct {
	Tier       int       `json:"tier"`
	Name       string    `json:"name"`
	UnlockedAt time.Time `json:"unlocked_at"`
}

// TierProgressDTO is the read model for progression screens.
type TierProgressDTO struct {
	UserID string `json:"user_id"`

	// Exists is false when the user has never earned points.
	Exists bool `json:"exists"`

	TotalPoints   int `json:"total_points"`
	DailyPoints   int `json:"daily_points"`
	WeeklyPoints  int `json:"weekly_points"`
	MonthlyPoints int `json:"monthly_points"`

	CurrentTier         TierDTO  `json:"current_tier"`
	NextTier            *TierDTO `json:"next_tier,omitempty"`
	PointsInCurrentTier int      `json:"points_in_current_tier"`
	PointsToNextTier    int      `json:"points_to_next_tier"`
	ProgressPercentage  float64  `json:"progress_percentage"`

	UnlockedFeatures    []string         `json:"unlocked_features"`
	PendingCelebrations []CelebrationDTO `json:"pending_celebrations"`
}

// GetTierProgressHandler handles GetTierProgressQuery.
type GetTierProgressHandler struct {
	repo  progress.Repository
	tiers *progress.TierTable
	clock clockwork.Clock
}

// NewGetTierProgressHandler creates a new GetTierProgressHandler.
func NewGetTierProgressHandler(repo progress.Repository, tiers *progress.TierTable, clock clockwork.Clock) *GetTierProgressHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &GetTierProgressHandler{repo: repo, tiers: tiers, clock: clock}
}

// Handle executes the query.
func (h *GetTierProgressHandler) Handle(ctx context.Context, q GetTierProgressQuery) (*TierProgressDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_tier_progress: %w", err)
	}
	userID := strings.TrimSpace(q.UserID)

	exists := true
	state, err := h.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, progress.ErrProgressNotFound):
		exists = false
		state = progress.NewState(userID, h.clock.Now())
	case err != nil:
		return nil, fmt.Errorf("get_tier_progress: %w", err)
	}

	return h.toDTO(state, exists), nil
}

func (h *GetTierProgressHandler) toDTO(s *progress.State, exists bool) *TierProgressDTO {
	p := h.tiers.Progress(s)
	current, _ := h.tiers.Tier(p.CurrentTier)

	dto := &TierProgressDTO{
		UserID:              s.UserID,
		Exists:              exists,
		TotalPoints:         s.TotalPoints,
		DailyPoints:         s.DailyPoints,
		WeeklyPoints:        s.WeeklyPoints,
		MonthlyPoints:       s.MonthlyPoints,
		CurrentTier:         tierDTO(current),
		PointsInCurrentTier: p.PointsInCurrentTier,
		PointsToNextTier:    p.PointsToNextTier,
		ProgressPercentage:  p.ProgressPercentage,
		UnlockedFeatures:    h.tiers.UnlockedFeatures(p.CurrentTier),
		PendingCelebrations: []CelebrationDTO{},
	}
	if p.NextTier != nil {
		next := tierDTO(*p.NextTier)
		dto.NextTier = &next
	}

	for _, u := range s.PendingCelebrations() {
		c := CelebrationDTO{Tier: u.Tier, UnlockedAt: u.UnlockedAt}
		if def, ok := h.tiers.Tier(u.Tier); ok {
			c.Name = def.Name
		}
		dto.PendingCelebrations = append(dto.PendingCelebrations, c)
	}
	return dto
}

func tierDTO(d progress.TierDefinition) TierDTO {
	features := d.Features
	if features == nil {
		features = []string{}
	}
	return TierDTO{
		Level:          d.Level,
		Name:           d.Name,
		PointsRequired: d.PointsRequired,
		Features:       features,
	}
}

// ListTiers returns the whole ladder as DTOs.
func ListTiers(tiers *progress.TierTable) []TierDTO {
	defs := tiers.Tiers()
	out := make([]TierDTO, 0, len(defs))
	for _, d := range defs {
		out = append(out, tierDTO(d))
	}
	return out
}
