package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fiberfriends/companion-engine/internal/domain/progress"
	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

type tierMark struct {
	Tier int       `bson:"tier"`
	At   time.Time `bson:"at"`
}

type progressDoc struct {
	UserID        string     `bson:"_id"`
	TotalPoints   int        `bson:"total_points"`
	CurrentTier   int        `bson:"current_tier"`
	DailyPoints   int        `bson:"daily_points"`
	WeeklyPoints  int        `bson:"weekly_points"`
	MonthlyPoints int        `bson:"monthly_points"`
	Unlocks       []tierMark `bson:"unlocks"`
	Celebrations  []tierMark `bson:"celebrations"`
	Version       int64      `bson:"version"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
}

type grantDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Action    string    `bson:"action"`
	Points    int       `bson:"points"`
	Category  string    `bson:"category"`
	CreatedAt time.Time `bson:"created_at"`
}

func toProgressDoc(s *progress.State) progressDoc {
	d := progressDoc{
		UserID:        s.UserID,
		TotalPoints:   s.TotalPoints,
		CurrentTier:   s.CurrentTier,
		DailyPoints:   s.DailyPoints,
		WeeklyPoints:  s.WeeklyPoints,
		MonthlyPoints: s.MonthlyPoints,
		Unlocks:       make([]tierMark, 0, len(s.Unlocks)),
		Celebrations:  make([]tierMark, 0, len(s.Celebrations)),
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}
	for _, u := range s.Unlocks {
		d.Unlocks = append(d.Unlocks, tierMark{Tier: u.Tier, At: u.UnlockedAt})
	}
	for tier, at := range s.Celebrations {
		d.Celebrations = append(d.Celebrations, tierMark{Tier: tier, At: at})
	}
	return d
}

func (d progressDoc) toState() *progress.State {
	s := &progress.State{
		UserID:        d.UserID,
		TotalPoints:   d.TotalPoints,
		CurrentTier:   d.CurrentTier,
		DailyPoints:   d.DailyPoints,
		WeeklyPoints:  d.WeeklyPoints,
		MonthlyPoints: d.MonthlyPoints,
		Unlocks:       make([]progress.TierUnlock, 0, len(d.Unlocks)),
		Celebrations:  make(map[int]time.Time, len(d.Celebrations)),
		Version:       d.Version,
		CreatedAt:     d.CreatedAt.UTC(),
		UpdatedAt:     d.UpdatedAt.UTC(),
	}
	for _, u := range d.Unlocks {
		s.Unlocks = append(s.Unlocks, progress.TierUnlock{Tier: u.Tier, UnlockedAt: u.At.UTC()})
	}
	for _, c := range d.Celebrations {
		s.Celebrations[c.Tier] = c.At.UTC()
	}
	return s
}

// ProgressRepository implements progress.Repository with optimistic
// concurrency on the document version.
type ProgressRepository struct {
	states *mongo.Collection
	grants *mongo.Collection
	now    func() time.Time
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(c *Client, now func() time.Time) *ProgressRepository {
	if now == nil {
		now = time.Now
	}
	return &ProgressRepository{
		states: c.Database().Collection(collProgress),
		grants: c.Database().Collection(collGrants),
		now:    now,
	}
}

var _ progress.Repository = (*ProgressRepository)(nil)

func (r *ProgressRepository) find(ctx context.Context, userID string) (*progress.State, error) {
	var doc progressDoc
	err := r.states.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, progress.ErrProgressNotFound
		}
		return nil, translate("GetProgress", err)
	}
	return doc.toState(), nil
}

// Get implements progress.Repository.
func (r *ProgressRepository) Get(ctx context.Context, userID string) (*progress.State, error) {
	return r.find(ctx, userID)
}

// swap writes st if the stored version still equals expected. A missing
// document is inserted when expected is zero.
func (r *ProgressRepository) swap(ctx context.Context, st *progress.State, expected int64, created bool) error {
	st.Version = expected + 1
	doc := toProgressDoc(st)

	if created {
		if _, err := r.states.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return shared.WrapError("mongodb", "Apply", shared.ErrConcurrentModification, "progress created concurrently", err)
			}
			return translate("Apply", err)
		}
		return nil
	}

	res, err := r.states.ReplaceOne(ctx, bson.M{"_id": st.UserID, "version": expected}, doc)
	if err != nil {
		return translate("Apply", err)
	}
	if res.MatchedCount == 0 {
		return shared.NewDomainError("mongodb", "Apply", shared.ErrConcurrentModification,
			fmt.Sprintf("progress for %s changed since version %d", st.UserID, expected))
	}
	return nil
}

// Apply implements progress.Repository. The grant row is written first and
// removed again if the version check loses.
func (r *ProgressRepository) Apply(ctx context.Context, userID string, fn progress.GrantFunc) (*progress.State, error) {
	st, err := r.find(ctx, userID)
	created := false
	if errors.Is(err, progress.ErrProgressNotFound) {
		st = progress.NewState(userID, r.now())
		created = true
	} else if err != nil {
		return nil, err
	}
	expected := st.Version

	grant, err := fn(st)
	if err != nil {
		return nil, err
	}

	if grant != nil {
		_, err := r.grants.InsertOne(ctx, grantDoc{
			ID:        grant.ID,
			UserID:    grant.UserID,
			Action:    grant.Action,
			Points:    grant.Points,
			Category:  grant.Category.String(),
			CreatedAt: grant.CreatedAt,
		})
		if mongo.IsDuplicateKeyError(err) {
			return nil, progress.ErrDuplicateGrant
		}
		if err != nil {
			return nil, translate("Apply", err)
		}
	}

	if err := r.swap(ctx, st, expected, created); err != nil {
		if grant != nil {
			_, _ = r.grants.DeleteOne(context.WithoutCancel(ctx), bson.M{"_id": grant.ID})
		}
		return nil, err
	}
	return st, nil
}

// Reset implements progress.Repository.
func (r *ProgressRepository) Reset(ctx context.Context, userID string, now time.Time) (*progress.State, error) {
	prev, err := r.find(ctx, userID)
	if err != nil && !errors.Is(err, progress.ErrProgressNotFound) {
		return nil, err
	}

	fresh := progress.NewState(userID, now)
	if prev != nil {
		fresh.Version = prev.Version + 1
	}
	_, err = r.states.ReplaceOne(ctx, bson.M{"_id": userID}, toProgressDoc(fresh), options.Replace().SetUpsert(true))
	if err != nil {
		return nil, translate("Reset", err)
	}
	if _, err := r.grants.DeleteMany(ctx, bson.M{"user_id": userID}); err != nil {
		return nil, translate("Reset", err)
	}
	return prev, nil
}

// AcknowledgeCelebration implements progress.Repository. Version conflicts
// are retried a few times since acknowledgements are idempotent.
func (r *ProgressRepository) AcknowledgeCelebration(ctx context.Context, userID string, tier int, at time.Time) error {
	const attempts = 3

	var err error
	for i := 0; i < attempts; i++ {
		var st *progress.State
		st, err = r.find(ctx, userID)
		if errors.Is(err, progress.ErrProgressNotFound) {
			return progress.NewState(userID, r.now()).Acknowledge(tier, at)
		}
		if err != nil {
			return err
		}

		expected := st.Version
		if err = st.Acknowledge(tier, at); err != nil {
			return err
		}
		err = r.swap(ctx, st, expected, false)
		if !shared.IsConflict(err) {
			return err
		}
	}
	return err
}

// ListGrants implements progress.Repository.
func (r *ProgressRepository) ListGrants(ctx context.Context, userID string, page shared.Pagination) ([]*progress.PointGrant, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit()))

	cur, err := r.grants.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, translate("ListGrants", err)
	}
	var docs []grantDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("ListGrants", err)
	}

	out := make([]*progress.PointGrant, 0, len(docs))
	for _, d := range docs {
		out = append(out, &progress.PointGrant{
			ID:        d.ID,
			UserID:    d.UserID,
			Action:    d.Action,
			Points:    d.Points,
			Category:  progress.Category(d.Category),
			CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// ResetCounters implements progress.Repository. The version is bumped so an
// in-flight grant cannot write the old counter back.
func (r *ProgressRepository) ResetCounters(ctx context.Context, window progress.Window) (int64, error) {
	var field string
	switch window {
	case progress.WindowDaily:
		field = "daily_points"
	case progress.WindowWeekly:
		field = "weekly_points"
	case progress.WindowMonthly:
		field = "monthly_points"
	default:
		return 0, shared.NewDomainError("mongodb", "ResetCounters", shared.ErrInvalidInput, fmt.Sprintf("unknown window %q", window))
	}

	res, err := r.states.UpdateMany(ctx,
		bson.M{field: bson.M{"$ne": 0}},
		bson.M{"$set": bson.M{field: 0}, "$inc": bson.M{"version": 1}},
	)
	if err != nil {
		return 0, translate("ResetCounters", err)
	}
	return res.ModifiedCount, nil
}

// ListUserIDs implements progress.Repository.
func (r *ProgressRepository) ListUserIDs(ctx context.Context, page shared.Pagination) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit()))

	cur, err := r.states.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, translate("ListUserIDs", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("ListUserIDs", err)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
