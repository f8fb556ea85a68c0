package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION SUPPORT
// ══════════════════════════════════════════════════════════════════════════════

// Migration represents a database migration.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator handles database migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a new migrator with embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return NewMigratorWithMigrations(conn, GetMigrations())
}

// NewMigratorWithMigrations creates a migrator with custom migrations.
func NewMigratorWithMigrations(conn *Connection, migrations []Migration) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: migrations,
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the migration tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns all applied migrations.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	query := fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName)

	rows, err := m.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}

	return applied, rows.Err()
}

// Migrate applies all pending migrations and returns how many ran.
func (m *Migrator) Migrate(ctx context.Context) (int, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return 0, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	ran := 0
	for _, mig := range m.migrations {
		if _, isApplied := applied[mig.Version]; isApplied {
			continue
		}

		if mig.UpSQL == "" {
			return ran, fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			insertQuery := fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName)
			_, err := tx.Exec(ctx, insertQuery, mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return ran, fmt.Errorf("%w: version %d: %w", ErrMigrationFailed, mig.Version, err)
		}
		ran++
	}

	return ran, nil
}

// Rollback rolls back the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var lastVersion int
	for v := range applied {
		if v > lastVersion {
			lastVersion = v
		}
	}
	if lastVersion == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == lastVersion {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, lastVersion)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", lastVersion, err)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName)
		_, err := tx.Exec(ctx, deleteQuery, lastVersion)
		return err
	})
}

// Status returns the migration status.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)

	for i := range result {
		if appliedAt, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = appliedAt
		}
	}

	return result, nil
}

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_progress", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_impact", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_activities", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: POINT LEDGER AND TIERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- One row per user. current_tier is derived from total_points on every write.
CREATE TABLE IF NOT EXISTS progress_states (
    user_id VARCHAR(128) PRIMARY KEY,
    total_points INTEGER NOT NULL DEFAULT 0,
    current_tier INTEGER NOT NULL DEFAULT 1,
    daily_points INTEGER NOT NULL DEFAULT 0,
    weekly_points INTEGER NOT NULL DEFAULT 0,
    monthly_points INTEGER NOT NULL DEFAULT 0,
    version BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_total CHECK (total_points >= 0),
    CONSTRAINT valid_tier CHECK (current_tier >= 1)
);

CREATE INDEX IF NOT EXISTS idx_progress_states_total ON progress_states(total_points DESC);

-- Append-only ledger of grants.
CREATE TABLE IF NOT EXISTS point_grants (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL REFERENCES progress_states(user_id) ON DELETE CASCADE,
    action VARCHAR(64) NOT NULL,
    points INTEGER NOT NULL,
    category VARCHAR(32) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT positive_points CHECK (points > 0),
    CONSTRAINT valid_category CHECK (category IN ('health_tracking', 'community', 'research', 'engagement', 'milestone'))
);

CREATE INDEX IF NOT EXISTS idx_point_grants_user_time ON point_grants(user_id, created_at DESC);

-- Tier unlock history. Rows are never updated.
CREATE TABLE IF NOT EXISTS tier_unlocks (
    user_id VARCHAR(128) NOT NULL REFERENCES progress_states(user_id) ON DELETE CASCADE,
    tier INTEGER NOT NULL,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (user_id, tier)
);

-- Celebrations the user has acknowledged.
CREATE TABLE IF NOT EXISTS tier_celebrations (
    user_id VARCHAR(128) NOT NULL REFERENCES progress_states(user_id) ON DELETE CASCADE,
    tier INTEGER NOT NULL,
    acknowledged_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (user_id, tier)
);
`

const migration001Down = `
DROP TABLE IF EXISTS tier_celebrations;
DROP TABLE IF EXISTS tier_unlocks;
DROP TABLE IF EXISTS point_grants;
DROP TABLE IF EXISTS progress_states;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: IMPACT SCORES AND ACHIEVEMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS impact_scores (
    user_id VARCHAR(128) PRIMARY KEY,
    research DOUBLE PRECISION NOT NULL DEFAULT 0,
    support DOUBLE PRECISION NOT NULL DEFAULT 0,
    knowledge DOUBLE PRECISION NOT NULL DEFAULT 0,
    mentoring DOUBLE PRECISION NOT NULL DEFAULT 0,
    consistency DOUBLE PRECISION NOT NULL DEFAULT 0,
    total INTEGER NOT NULL DEFAULT 0,
    current_streak INTEGER NOT NULL DEFAULT 0,
    longest_streak INTEGER NOT NULL DEFAULT 0,
    calculated_at TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_impact_scores_calculated ON impact_scores(calculated_at);

-- The primary key makes each unlock happen at most once per user.
CREATE TABLE IF NOT EXISTS achievements (
    user_id VARCHAR(128) NOT NULL,
    achievement_id VARCHAR(64) NOT NULL,
    name VARCHAR(100) NOT NULL,
    category VARCHAR(32) NOT NULL,
    unlocked_at TIMESTAMP WITH TIME ZONE NOT NULL,
    PRIMARY KEY (user_id, achievement_id)
);
`

const migration002Down = `
DROP TABLE IF EXISTS achievements;
DROP TABLE IF EXISTS impact_scores;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: ACTIVITY COLLECTIONS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
CREATE TABLE IF NOT EXISTS research_participation (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    type VARCHAR(32) NOT NULL,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_research_user ON research_participation(user_id);

CREATE TABLE IF NOT EXISTS forum_activity (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    category VARCHAR(64) NOT NULL DEFAULT '',
    helpful_votes INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL,

    CONSTRAINT valid_forum_kind CHECK (kind IN ('post', 'reply')),
    CONSTRAINT valid_votes CHECK (helpful_votes >= 0)
);
CREATE INDEX IF NOT EXISTS idx_forum_user ON forum_activity(user_id);

CREATE TABLE IF NOT EXISTS mentoring_records (
    id UUID PRIMARY KEY,
    mentor_id VARCHAR(128) NOT NULL,
    mentee_id VARCHAR(128) NOT NULL,
    kind VARCHAR(32) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    started_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mentoring_mentor ON mentoring_records(mentor_id);

CREATE TABLE IF NOT EXISTS daily_records (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    kind VARCHAR(16) NOT NULL,
    recorded_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_daily_user_time ON daily_records(user_id, recorded_at DESC);

CREATE TABLE IF NOT EXISTS community_contributions (
    id UUID PRIMARY KEY,
    user_id VARCHAR(128) NOT NULL,
    kind VARCHAR(64) NOT NULL,
    points INTEGER NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_community_user ON community_contributions(user_id);
`

const migration003Down = `
DROP TABLE IF EXISTS community_contributions;
DROP TABLE IF EXISTS daily_records;
DROP TABLE IF EXISTS mentoring_records;
DROP TABLE IF EXISTS forum_activity;
DROP TABLE IF EXISTS research_participation;
`
