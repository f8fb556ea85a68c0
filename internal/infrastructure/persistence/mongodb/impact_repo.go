package mongodb

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
)

type scoreDoc struct {
	UserID        string    `bson:"_id"`
	Research      float64   `bson:"research"`
	Support       float64   `bson:"support"`
	Knowledge     float64   `bson:"knowledge"`
	Mentoring     float64   `bson:"mentoring"`
	Consistency   float64   `bson:"consistency"`
	Total         int       `bson:"total"`
	CurrentStreak int       `bson:"current_streak"`
	LongestStreak int       `bson:"longest_streak"`
	CalculatedAt  time.Time `bson:"calculated_at"`
}

type achievementDoc struct {
	UserID        string    `bson:"user_id"`
	AchievementID string    `bson:"achievement_id"`
	Name          string    `bson:"name"`
	Category      string    `bson:"category"`
	UnlockedAt    time.Time `bson:"unlocked_at"`
}

// ScoreRepository implements impact.ScoreRepository.
type ScoreRepository struct {
	coll *mongo.Collection
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(c *Client) *ScoreRepository {
	return &ScoreRepository{coll: c.Database().Collection(collScores)}
}

var _ impact.ScoreRepository = (*ScoreRepository)(nil)

// Get implements impact.ScoreRepository.
func (r *ScoreRepository) Get(ctx context.Context, userID string) (*impact.Score, error) {
	var d scoreDoc
	if err := r.coll.FindOne(ctx, bson.M{"_id": userID}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, impact.ErrScoreNotFound
		}
		return nil, translate("GetScore", err)
	}
	return &impact.Score{
		UserID:        d.UserID,
		Research:      d.Research,
		Support:       d.Support,
		Knowledge:     d.Knowledge,
		Mentoring:     d.Mentoring,
		Consistency:   d.Consistency,
		Total:         d.Total,
		CurrentStreak: d.CurrentStreak,
		LongestStreak: d.LongestStreak,
		CalculatedAt:  d.CalculatedAt.UTC(),
	}, nil
}

// Save implements impact.ScoreRepository.
func (r *ScoreRepository) Save(ctx context.Context, s *impact.Score) error {
	doc := scoreDoc{
		UserID:        s.UserID,
		Research:      s.Research,
		Support:       s.Support,
		Knowledge:     s.Knowledge,
		Mentoring:     s.Mentoring,
		Consistency:   s.Consistency,
		Total:         s.Total,
		CurrentStreak: s.CurrentStreak,
		LongestStreak: s.LongestStreak,
		CalculatedAt:  s.CalculatedAt,
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": s.UserID}, doc, options.Replace().SetUpsert(true))
	return translate("SaveScore", err)
}

// ListStale implements impact.ScoreRepository.
func (r *ScoreRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 100
	}
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "calculated_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(limit))

	cur, err := r.coll.Find(ctx, bson.M{"calculated_at": bson.M{"$lt": before}}, opts)
	if err != nil {
		return nil, translate("ListStale", err)
	}
	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("ListStale", err)
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// AchievementRepository implements impact.AchievementRepository. Uniqueness
// comes from the (user_id, achievement_id) index built by EnsureIndexes.
type AchievementRepository struct {
	coll *mongo.Collection
}

// NewAchievementRepository creates a new AchievementRepository.
func NewAchievementRepository(c *Client) *AchievementRepository {
	return &AchievementRepository{coll: c.Database().Collection(collAchievements)}
}

var _ impact.AchievementRepository = (*AchievementRepository)(nil)

// Has implements impact.AchievementRepository.
func (r *AchievementRepository) Has(ctx context.Context, userID, achievementID string) (bool, error) {
	n, err := r.coll.CountDocuments(ctx, bson.M{"user_id": userID, "achievement_id": achievementID}, options.Count().SetLimit(1))
	if err != nil {
		return false, translate("HasAchievement", err)
	}
	return n > 0, nil
}

// Unlock implements impact.AchievementRepository.
func (r *AchievementRepository) Unlock(ctx context.Context, a *impact.Achievement) (bool, error) {
	_, err := r.coll.InsertOne(ctx, achievementDoc{
		UserID:        a.UserID,
		AchievementID: a.AchievementID,
		Name:          a.Name,
		Category:      a.Category,
		UnlockedAt:    a.UnlockedAt,
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, translate("UnlockAchievement", err)
	}
	return true, nil
}

// List implements impact.AchievementRepository.
func (r *AchievementRepository) List(ctx context.Context, userID string) ([]*impact.Achievement, error) {
	opts := options.Find().SetSort(bson.D{{Key: "unlocked_at", Value: 1}, {Key: "achievement_id", Value: 1}})
	cur, err := r.coll.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, translate("ListAchievements", err)
	}
	var docs []achievementDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate("ListAchievements", err)
	}
	out := make([]*impact.Achievement, 0, len(docs))
	for _, d := range docs {
		out = append(out, &impact.Achievement{
			UserID:        d.UserID,
			AchievementID: d.AchievementID,
			Name:          d.Name,
			Category:      d.Category,
			UnlockedAt:    d.UnlockedAt.UTC(),
		})
	}
	return out, nil
}
