package progress

import (
	"context"
	"time"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// GrantFunc mutates the locked state and returns the grant to append.
// Returning an error aborts the unit with nothing written.
type GrantFunc func(state *State) (*PointGrant, error)

// Repository stores progress state and the grant ledger.
type Repository interface {
	// Get returns the user's state.
	// Returns ErrProgressNotFound if the user has no progress yet.
	Get(ctx context.Context, userID string) (*State, error)

	// Apply runs fn against the user's state inside one atomic unit,
	// initializing the state if absent. The grant, the state and any unlocks
	// appended by fn are persisted together or not at all. Optimistic
	// backends may return shared.ErrConcurrentModification, in which case
	// nothing was written and the call may be repeated. A grant whose ID is
	// already recorded aborts the unit with ErrDuplicateGrant.
	Apply(ctx context.Context, userID string, fn GrantFunc) (*State, error)

	// Reset reinitializes the user to the starting state and deletes their
	// grants. It returns the state as it was before the reset, or nil if the
	// user had none.
	Reset(ctx context.Context, userID string, now time.Time) (*State, error)

	// AcknowledgeCelebration marks a tier celebration as shown.
	// Returns ErrTierNotUnlocked or ErrAlreadyAcknowledged.
	AcknowledgeCelebration(ctx context.Context, userID string, tier int, at time.Time) error

	// ListGrants returns the user's grants, newest first.
	ListGrants(ctx context.Context, userID string, page shared.Pagination) ([]*PointGrant, error)

	// ResetCounters zeroes a rolling counter for every user and returns how
	// many states were touched.
	ResetCounters(ctx context.Context, window Window) (int64, error)

	// ListUserIDs returns user IDs with progress, ordered by ID.
	ListUserIDs(ctx context.Context, page shared.Pagination) ([]string, error)
}
