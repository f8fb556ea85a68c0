package progress

import (
	"errors"
	"fmt"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// Progress domain errors.
var (
	// ErrProgressNotFound means the user has no progress yet. It is a valid
	// state (tier 1, zero points), never a store failure.
	ErrProgressNotFound = fmt.Errorf("progress not found: %w", shared.ErrNotFound)

	// ErrInvalidTierTable is returned when a tier table fails validation.
	// It is fatal at load time.
	ErrInvalidTierTable = fmt.Errorf("invalid tier table: %w", shared.ErrConfiguration)

	// ErrInvalidPointValues is returned when the action table fails validation.
	ErrInvalidPointValues = fmt.Errorf("invalid point values: %w", shared.ErrConfiguration)

	// ErrUnknownCategory is returned for a category outside the fixed set.
	ErrUnknownCategory = fmt.Errorf("unknown category: %w", shared.ErrInvalidInput)

	// ErrUnknownAction is returned when an action has no entry in the point table.
	ErrUnknownAction = fmt.Errorf("unknown action: %w", shared.ErrInvalidInput)

	// ErrNonPositivePoints is returned for grants of zero or negative points.
	ErrNonPositivePoints = fmt.Errorf("points must be positive: %w", shared.ErrInvalidInput)

	// ErrTierNotUnlocked is returned when acknowledging a tier the user never reached.
	ErrTierNotUnlocked = fmt.Errorf("tier not unlocked: %w", shared.ErrNotFound)

	// ErrAlreadyAcknowledged is returned when a celebration was already shown.
	ErrAlreadyAcknowledged = errors.New("celebration already acknowledged")

	// ErrDuplicateGrant is returned by Repository.Apply when a grant with the
	// same ID is already in the ledger. Nothing was written.
	ErrDuplicateGrant = errors.New("grant already recorded")
)

const domainName = "progress"

func invalid(op string, kind error, message string) error {
	return shared.NewDomainError(domainName, op, kind, message)
}
