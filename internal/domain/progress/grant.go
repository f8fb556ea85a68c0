package progress

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// grantNamespace scopes keyed grant IDs.
var grantNamespace = uuid.MustParse("6f1c2a7e-3b5d-4c8e-9a0f-2d7b8e4c1a55")

// GrantIDFor derives a stable grant ID from a user and an idempotency key.
// Two grants carrying the same key share one ledger row.
func GrantIDFor(userID, key string) string {
	return uuid.NewSHA1(grantNamespace, []byte(strings.TrimSpace(userID)+"\x00"+key)).String()
}

// PointGrant is one immutable award of points. Grants are never updated or
// deleted; a user's total is the sum of their grants.
type PointGrant struct {
	// ID is a random UUID, or GrantIDFor(user, key) for keyed grants.
	ID string

	// UserID is the owner.
	UserID string

	// Action is the short label of what was done, e.g. "daily_checkin".
	Action string

	// Points is always positive.
	Points int

	// Category of the action.
	Category Category

	// CreatedAt is when the grant was recorded (UTC).
	CreatedAt time.Time
}

// NewPointGrant validates input and creates a grant with a fresh ID.
func NewPointGrant(userID, action string, points int, category Category, now time.Time) (*PointGrant, error) {
	const op = "NewPointGrant"

	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return nil, invalid(op, shared.ErrEmptyValue, "action is required")
	}
	if points <= 0 {
		return nil, invalid(op, ErrNonPositivePoints, "points must be a positive integer")
	}
	if !category.IsValid() {
		return nil, invalid(op, ErrUnknownCategory, "category "+string(category)+" is not supported")
	}

	return &PointGrant{
		ID:        uuid.NewString(),
		UserID:    strings.TrimSpace(userID),
		Action:    action,
		Points:    points,
		Category:  category,
		CreatedAt: now.UTC(),
	}, nil
}
