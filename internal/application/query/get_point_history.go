package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// GetPointHistoryQuery pages through a user's grants, newest first.
type GetPointHistoryQuery struct {
	UserID   string
	Page     int
	PageSize int
}

// GrantDTO is one ledger entry.
type GrantDTO struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Points    int       `json:"points"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

// GetPointHistoryHandler handles GetPointHistoryQuery.
type GetPointHistoryHandler struct {
	repo progress.Repository
}

// NewGetPointHistoryHandler creates a new GetPointHistoryHandler.
func NewGetPointHistoryHandler(repo progress.Repository) *GetPointHistoryHandler {
	return &GetPointHistoryHandler{repo: repo}
}

// Handle executes the query. Users without grants get an empty list.
func (h *GetPointHistoryHandler) Handle(ctx context.Context, q GetPointHistoryQuery) ([]GrantDTO, error) {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return nil, fmt.Errorf("get_point_history: %w", err)
	}

	grants, err := h.repo.ListGrants(ctx, strings.TrimSpace(q.UserID), shared.NewPagination(q.Page, q.PageSize))
	if err != nil {
		return nil, fmt.Errorf("get_point_history: %w", err)
	}

	out := make([]GrantDTO, 0, len(grants))
	for _, g := range grants {
		out = append(out, GrantDTO{
			ID:        g.ID,
			Action:    g.Action,
			Points:    g.Points,
			Category:  g.Category.String(),
			CreatedAt: g.CreatedAt,
		})
	}
	return out, nil
}
