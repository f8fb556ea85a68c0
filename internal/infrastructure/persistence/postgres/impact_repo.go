package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
)

// ══════════════════════════════════════════════════════════════════════════════
// IMPACT SCORE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository implements impact.ScoreRepository for PostgreSQL.
type ScoreRepository struct {
	conn *Connection
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(conn *Connection) *ScoreRepository {
	return &ScoreRepository{conn: conn}
}

var _ impact.ScoreRepository = (*ScoreRepository)(nil)

// Get implements impact.ScoreRepository.
func (r *ScoreRepository) Get(ctx context.Context, userID string) (*impact.Score, error) {
	query := `
		SELECT user_id, research, support, knowledge, mentoring, consistency,
			   total, current_streak, longest_streak, calculated_at
		FROM impact_scores
		WHERE user_id = $1
	`

	s := &impact.Score{}
	err := r.conn.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.Research,
		&s.Support,
		&s.Knowledge,
		&s.Mentoring,
		&s.Consistency,
		&s.Total,
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.CalculatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, impact.ErrScoreNotFound
		}
		return nil, translate("GetScore", err)
	}
	s.CalculatedAt = s.CalculatedAt.UTC()
	return s, nil
}

// Save implements impact.ScoreRepository. The stored score is overwritten.
func (r *ScoreRepository) Save(ctx context.Context, s *impact.Score) error {
	query := `
		INSERT INTO impact_scores (
			user_id, research, support, knowledge, mentoring, consistency,
			total, current_streak, longest_streak, calculated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			research = EXCLUDED.research,
			support = EXCLUDED.support,
			knowledge = EXCLUDED.knowledge,
			mentoring = EXCLUDED.mentoring,
			consistency = EXCLUDED.consistency,
			total = EXCLUDED.total,
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			calculated_at = EXCLUDED.calculated_at
	`

	_, err := r.conn.Exec(ctx, query,
		s.UserID,
		s.Research,
		s.Support,
		s.Knowledge,
		s.Mentoring,
		s.Consistency,
		s.Total,
		s.CurrentStreak,
		s.LongestStreak,
		s.CalculatedAt,
	)
	return translate("SaveScore", err)
}

// ListStale implements impact.ScoreRepository.
func (r *ScoreRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.conn.Query(ctx, `
		SELECT user_id FROM impact_scores
		WHERE calculated_at < $1
		ORDER BY calculated_at, user_id
		LIMIT $2
	`, before, limit)
	if err != nil {
		return nil, translate("ListStale", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, translate("ListStale", err)
	}
	return ids, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// AchievementRepository implements impact.AchievementRepository for PostgreSQL.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

var _ impact.AchievementRepository = (*AchievementRepository)(nil)

// Has implements impact.AchievementRepository.
func (r *AchievementRepository) Has(ctx context.Context, userID, achievementID string) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM achievements WHERE user_id = $1 AND achievement_id = $2)
	`, userID, achievementID).Scan(&exists)
	if err != nil {
		return false, translate("HasAchievement", err)
	}
	return exists, nil
}

// Unlock implements impact.AchievementRepository. The primary key on
// (user_id, achievement_id) makes a concurrent duplicate a no-op.
func (r *AchievementRepository) Unlock(ctx context.Context, a *impact.Achievement) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
		INSERT INTO achievements (user_id, achievement_id, name, category, unlocked_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, a.UserID, a.AchievementID, a.Name, a.Category, a.UnlockedAt)
	if err != nil {
		return false, translate("UnlockAchievement", err)
	}
	return tag.RowsAffected() == 1, nil
}

// List implements impact.AchievementRepository.
func (r *AchievementRepository) List(ctx context.Context, userID string) ([]*impact.Achievement, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT user_id, achievement_id, name, category, unlocked_at
		FROM achievements
		WHERE user_id = $1
		ORDER BY unlocked_at, achievement_id
	`, userID)
	if err != nil {
		return nil, translate("ListAchievements", err)
	}

	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*impact.Achievement, error) {
		a := &impact.Achievement{}
		if err := row.Scan(&a.UserID, &a.AchievementID, &a.Name, &a.Category, &a.UnlockedAt); err != nil {
			return nil, err
		}
		a.UnlockedAt = a.UnlockedAt.UTC()
		return a, nil
	})
	if err != nil {
		return nil, translate("ListAchievements", err)
	}
	return list, nil
}
