package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn  *Connection
	clock func() time.Time
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection, now func() time.Time) *ProgressRepository {
	if now == nil {
		now = time.Now
	}
	return &ProgressRepository{conn: conn, clock: now}
}

var _ progress.Repository = (*ProgressRepository)(nil)

const selectState = `
	SELECT user_id, total_points, current_tier, daily_points, weekly_points,
		   monthly_points, version, created_at, updated_at
	FROM progress_states
	WHERE user_id = $1
`

// errCallback marks a failure returned by the caller's GrantFunc so it is not
// mistaken for a driver error.
type errCallback struct{ err error }

func (e errCallback) Error() string { return e.err.Error() }

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Get implements progress.Repository.
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*progress.State, error) {
	var st *progress.State
	err := r.conn.WithTx(ctx, ReadOnlyTxOptions(), func(tx pgx.Tx) error {
		var err error
		st, err = r.load(ctx, tx, userID, false)
		return err
	})
	if err != nil {
		if errors.Is(err, progress.ErrProgressNotFound) {
			return nil, err
		}
		return nil, translate("GetProgress", err)
	}
	return st, nil
}

// load reads the state row plus its unlock and celebration rows. forUpdate
// takes the row lock that serializes writers for the user.
func (r *ProgressRepository) load(ctx context.Context, q Querier, userID string, forUpdate bool) (*progress.State, error) {
	query := selectState
	if forUpdate {
		query += " FOR UPDATE"
	}

	st := &progress.State{Celebrations: make(map[int]time.Time)}
	err := q.QueryRow(ctx, query, userID).Scan(
		&st.UserID,
		&st.TotalPoints,
		&st.CurrentTier,
		&st.DailyPoints,
		&st.WeeklyPoints,
		&st.MonthlyPoints,
		&st.Version,
		&st.CreatedAt,
		&st.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrProgressNotFound
		}
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	rows, err := q.Query(ctx, `SELECT tier, unlocked_at FROM tier_unlocks WHERE user_id = $1 ORDER BY tier`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load unlocks: %w", err)
	}
	unlocks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (progress.TierUnlock, error) {
		var u progress.TierUnlock
		err := row.Scan(&u.Tier, &u.UnlockedAt)
		u.UnlockedAt = u.UnlockedAt.UTC()
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan unlocks: %w", err)
	}
	st.Unlocks = unlocks

	rows, err = q.Query(ctx, `SELECT tier, acknowledged_at FROM tier_celebrations WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load celebrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var tier int
		var at time.Time
		if err := rows.Scan(&tier, &at); err != nil {
			return nil, fmt.Errorf("failed to scan celebration: %w", err)
		}
		st.Celebrations[tier] = at.UTC()
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

// ListGrants implements progress.Repository.
func (r *ProgressRepository) ListGrants(ctx context.Context, userID string, page shared.Pagination) ([]*progress.PointGrant, error) {
	query := `
		SELECT id, user_id, action, points, category, created_at
		FROM point_grants
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`

	rows, err := r.conn.Query(ctx, query, userID, page.Limit(), page.Offset())
	if err != nil {
		return nil, translate("ListGrants", err)
	}

	grants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*progress.PointGrant, error) {
		g := &progress.PointGrant{}
		var category string
		if err := row.Scan(&g.ID, &g.UserID, &g.Action, &g.Points, &category, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.Category = progress.Category(category)
		g.CreatedAt = g.CreatedAt.UTC()
		return g, nil
	})
	if err != nil {
		return nil, translate("ListGrants", err)
	}
	return grants, nil
}

// ListUserIDs implements progress.Repository.
func (r *ProgressRepository) ListUserIDs(ctx context.Context, page shared.Pagination) ([]string, error) {
	rows, err := r.conn.Query(ctx, `SELECT user_id FROM progress_states ORDER BY user_id LIMIT $1 OFFSET $2`, page.Limit(), page.Offset())
	if err != nil {
		return nil, translate("ListUserIDs", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate("ListUserIDs", err)
	}
	return ids, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Apply implements progress.Repository. The state row is locked with
// SELECT ... FOR UPDATE for the whole read-modify-write.
func (r *ProgressRepository) Apply(ctx context.Context, userID string, fn progress.GrantFunc) (*progress.State, error) {
	var result *progress.State

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if err := r.ensure(ctx, tx, progress.NewState(userID, r.clock())); err != nil {
			return err
		}

		st, err := r.load(ctx, tx, userID, true)
		if err != nil {
			return err
		}
		prevUnlocks := len(st.Unlocks)

		grant, err := fn(st)
		if err != nil {
			return errCallback{err}
		}

		if err := r.saveState(ctx, tx, st); err != nil {
			return err
		}
		if grant != nil {
			tag, err := tx.Exec(ctx, `
				INSERT INTO point_grants (id, user_id, action, points, category, created_at)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (id) DO NOTHING
			`, grant.ID, grant.UserID, grant.Action, grant.Points, grant.Category.String(), grant.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert grant: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return errCallback{progress.ErrDuplicateGrant}
			}
		}
		for _, u := range st.Unlocks[prevUnlocks:] {
			_, err := tx.Exec(ctx, `
				INSERT INTO tier_unlocks (user_id, tier, unlocked_at)
				VALUES ($1, $2, $3)
				ON CONFLICT (user_id, tier) DO NOTHING
			`, userID, u.Tier, u.UnlockedAt)
			if err != nil {
				return fmt.Errorf("failed to insert unlock: %w", err)
			}
		}

		result = st
		return nil
	})

	var cbErr errCallback
	if errors.As(err, &cbErr) {
		return nil, cbErr.err
	}
	if err != nil {
		return nil, translate("Apply", err)
	}
	return result, nil
}

// ensure inserts the starting state if the user has none.
func (r *ProgressRepository) ensure(ctx context.Context, q Querier, st *progress.State) error {
	tag, err := q.Exec(ctx, `
		INSERT INTO progress_states (user_id, total_points, current_tier, version, created_at, updated_at)
		VALUES ($1, 0, 1, 0, $2, $2)
		ON CONFLICT (user_id) DO NOTHING
	`, st.UserID, st.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	for _, u := range st.Unlocks {
		if _, err := q.Exec(ctx, `INSERT INTO tier_unlocks (user_id, tier, unlocked_at) VALUES ($1, $2, $3)`, st.UserID, u.Tier, u.UnlockedAt); err != nil {
			return fmt.Errorf("failed to create unlock: %w", err)
		}
	}
	for tier, at := range st.Celebrations {
		if _, err := q.Exec(ctx, `INSERT INTO tier_celebrations (user_id, tier, acknowledged_at) VALUES ($1, $2, $3)`, st.UserID, tier, at); err != nil {
			return fmt.Errorf("failed to create celebration: %w", err)
		}
	}
	return nil
}

func (r *ProgressRepository) saveState(ctx context.Context, q Querier, st *progress.State) error {
	_, err := q.Exec(ctx, `
		UPDATE progress_states SET
			total_points = $2,
			current_tier = $3,
			daily_points = $4,
			weekly_points = $5,
			monthly_points = $6,
			version = $7,
			updated_at = $8
		WHERE user_id = $1
	`,
		st.UserID,
		st.TotalPoints,
		st.CurrentTier,
		st.DailyPoints,
		st.WeeklyPoints,
		st.MonthlyPoints,
		st.Version,
		st.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// Reset implements progress.Repository. Deleting the state row cascades to
// grants, unlocks and celebrations.
func (r *ProgressRepository) Reset(ctx context.Context, userID string, now time.Time) (*progress.State, error) {
	var previous *progress.State

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		st, err := r.load(ctx, tx, userID, true)
		switch {
		case errors.Is(err, progress.ErrProgressNotFound):
		case err != nil:
			return err
		default:
			previous = st
		}

		if _, err := tx.Exec(ctx, `DELETE FROM progress_states WHERE user_id = $1`, userID); err != nil {
			return fmt.Errorf("failed to delete progress: %w", err)
		}
		return r.ensure(ctx, tx, progress.NewState(userID, now))
	})
	if err != nil {
		return nil, translate("Reset", err)
	}
	return previous, nil
}

// AcknowledgeCelebration implements progress.Repository.
func (r *ProgressRepository) AcknowledgeCelebration(ctx context.Context, userID string, tier int, at time.Time) error {
	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		st, err := r.load(ctx, tx, userID, true)
		if errors.Is(err, progress.ErrProgressNotFound) {
			st = progress.NewState(userID, r.clock())
		} else if err != nil {
			return err
		}

		if err := st.Acknowledge(tier, at); err != nil {
			return errCallback{err}
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO tier_celebrations (user_id, tier, acknowledged_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id, tier) DO NOTHING
		`, userID, tier, st.Celebrations[tier])
		if err != nil {
			return fmt.Errorf("failed to insert celebration: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return errCallback{progress.ErrAlreadyAcknowledged}
		}
		return r.saveState(ctx, tx, st)
	})

	var cbErr errCallback
	if errors.As(err, &cbErr) {
		return cbErr.err
	}
	return translate("AcknowledgeCelebration", err)
}

// ResetCounters implements progress.Repository.
func (r *ProgressRepository) ResetCounters(ctx context.Context, window progress.Window) (int64, error) {
	var column string
	switch window {
	case progress.WindowDaily:
		column = "daily_points"
	case progress.WindowWeekly:
		column = "weekly_points"
	case progress.WindowMonthly:
		column = "monthly_points"
	default:
		return 0, shared.NewDomainError("postgres", "ResetCounters", shared.ErrInvalidInput, fmt.Sprintf("unknown window %q", window))
	}

	query := fmt.Sprintf(`UPDATE progress_states SET %[1]s = 0 WHERE %[1]s <> 0`, column)
	tag, err := r.conn.Exec(ctx, query)
	if err != nil {
		return 0, translate("ResetCounters", err)
	}
	return tag.RowsAffected(), nil
}
