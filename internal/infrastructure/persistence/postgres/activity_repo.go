package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
)

// ActivityRepository implements impact.ActivitySource and
// impact.ActivityRecorder using PostgreSQL.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{
		conn: conn,
	}
}

var (
	_ impact.ActivitySource   = (*ActivityRepository)(nil)
	_ impact.ActivityRecorder = (*ActivityRepository)(nil)
)

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// ResearchRecords implements impact.ActivitySource.
func (r *ActivityRepository) ResearchRecords(ctx context.Context, userID string) ([]impact.ResearchRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, type, occurred_at FROM research_participation WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, translate("ResearchRecords", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (impact.ResearchRecord, error) {
		var rec impact.ResearchRecord
		var typ string
		err := row.Scan(&rec.ID, &rec.UserID, &typ, &rec.OccurredAt)
		rec.Type = impact.ResearchType(typ)
		return rec, err
	})
	return out, translate("ResearchRecords", err)
}

// ForumActivity implements impact.ActivitySource.
func (r *ActivityRepository) ForumActivity(ctx context.Context, userID string) ([]impact.ForumActivity, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, kind, category, helpful_votes, created_at FROM forum_activity WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, translate("ForumActivity", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (impact.ForumActivity, error) {
		var f impact.ForumActivity
		var kind string
		err := row.Scan(&f.ID, &f.UserID, &kind, &f.Category, &f.HelpfulVotes, &f.CreatedAt)
		f.Kind = impact.ForumKind(kind)
		return f, err
	})
	return out, translate("ForumActivity", err)
}

// MentoringRecords implements impact.ActivitySource. Only records where the
// user is the mentor are returned.
func (r *ActivityRepository) MentoringRecords(ctx context.Context, userID string) ([]impact.MentoringRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, mentor_id, mentee_id, kind, active, started_at FROM mentoring_records WHERE mentor_id = $1
	`, userID)
	if err != nil {
		return nil, translate("MentoringRecords", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (impact.MentoringRecord, error) {
		var m impact.MentoringRecord
		var kind string
		err := row.Scan(&m.ID, &m.MentorID, &m.MenteeID, &kind, &m.Active, &m.StartedAt)
		m.Kind = impact.MentoringKind(kind)
		return m, err
	})
	return out, translate("MentoringRecords", err)
}

// DailyRecords implements impact.ActivitySource.
func (r *ActivityRepository) DailyRecords(ctx context.Context, userID string) ([]impact.DailyRecord, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, kind, recorded_at FROM daily_records WHERE user_id = $1 ORDER BY recorded_at DESC
	`, userID)
	if err != nil {
		return nil, translate("DailyRecords", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (impact.DailyRecord, error) {
		var d impact.DailyRecord
		var kind string
		err := row.Scan(&d.ID, &d.UserID, &kind, &d.RecordedAt)
		d.Kind = impact.DailyKind(kind)
		return d, err
	})
	return out, translate("DailyRecords", err)
}

// CommunityContributions implements impact.ActivitySource.
func (r *ActivityRepository) CommunityContributions(ctx context.Context, userID string) ([]impact.CommunityContribution, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, kind, points, created_at FROM community_contributions WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, translate("CommunityContributions", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (impact.CommunityContribution, error) {
		var c impact.CommunityContribution
		err := row.Scan(&c.ID, &c.UserID, &c.Kind, &c.Points, &c.CreatedAt)
		return c, err
	})
	return out, translate("CommunityContributions", err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// AddResearch implements impact.ActivityRecorder.
func (r *ActivityRepository) AddResearch(ctx context.Context, rec impact.ResearchRecord) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO research_participation (id, user_id, type, occurred_at) VALUES ($1, $2, $3, $4)
	`, rec.ID, rec.UserID, string(rec.Type), rec.OccurredAt)
	return translate("AddResearch", err)
}

// AddForum implements impact.ActivityRecorder.
func (r *ActivityRepository) AddForum(ctx context.Context, f impact.ForumActivity) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO forum_activity (id, user_id, kind, category, helpful_votes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.UserID, string(f.Kind), f.Category, f.HelpfulVotes, f.CreatedAt)
	return translate("AddForum", err)
}

// AddMentoring implements impact.ActivityRecorder.
func (r *ActivityRepository) AddMentoring(ctx context.Context, m impact.MentoringRecord) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO mentoring_records (id, mentor_id, mentee_id, kind, active, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.MentorID, m.MenteeID, string(m.Kind), m.Active, m.StartedAt)
	return translate("AddMentoring", err)
}

// AddDaily implements impact.ActivityRecorder.
func (r *ActivityRepository) AddDaily(ctx context.Context, d impact.DailyRecord) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO daily_records (id, user_id, kind, recorded_at) VALUES ($1, $2, $3, $4)
	`, d.ID, d.UserID, string(d.Kind), d.RecordedAt)
	return translate("AddDaily", err)
}

// AddCommunity implements impact.ActivityRecorder.
func (r *ActivityRepository) AddCommunity(ctx context.Context, c impact.CommunityContribution) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO community_contributions (id, user_id, kind, points, created_at) VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.UserID, c.Kind, c.Points, c.CreatedAt)
	return translate("AddCommunity", err)
}
