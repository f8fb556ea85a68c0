package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fiberfriends/companion-engine/internal/domain/impact"
)

type researchDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Type       string    `bson:"type"`
	OccurredAt time.Time `bson:"occurred_at"`
}

type forumDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Kind         string    `bson:"kind"`
	Category     string    `bson:"category"`
	HelpfulVotes int       `bson:"helpful_votes"`
	CreatedAt    time.Time `bson:"created_at"`
}

type mentoringDoc struct {
	ID        string    `bson:"_id"`
	MentorID  string    `bson:"mentor_id"`
	MenteeID  string    `bson:"mentee_id"`
	Kind      string    `bson:"kind"`
	Active    bool      `bson:"active"`
	StartedAt time.Time `bson:"started_at"`
}

type dailyDoc struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	Kind       string    `bson:"kind"`
	RecordedAt time.Time `bson:"recorded_at"`
}

type communityDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"user_id"`
	Kind      string    `bson:"kind"`
	Points    int       `bson:"points"`
	CreatedAt time.Time `bson:"created_at"`
}

// ActivityRepository implements impact.ActivitySource and
// impact.ActivityRecorder, one collection per activity kind.
type ActivityRepository struct {
	db *mongo.Database
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(c *Client) *ActivityRepository {
	return &ActivityRepository{db: c.Database()}
}

var (
	_ impact.ActivitySource   = (*ActivityRepository)(nil)
	_ impact.ActivityRecorder = (*ActivityRepository)(nil)
)

func findAll[T any](ctx context.Context, coll *mongo.Collection, op string, filter bson.M) ([]T, error) {
	cur, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, translate(op, err)
	}
	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return nil, translate(op, err)
	}
	return docs, nil
}

// ResearchRecords implements impact.ActivitySource.
func (r *ActivityRepository) ResearchRecords(ctx context.Context, userID string) ([]impact.ResearchRecord, error) {
	docs, err := findAll[researchDoc](ctx, r.db.Collection(collResearch), "ResearchRecords", bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]impact.ResearchRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, impact.ResearchRecord{ID: d.ID, UserID: d.UserID, Type: impact.ResearchType(d.Type), OccurredAt: d.OccurredAt.UTC()})
	}
	return out, nil
}

// ForumActivity implements impact.ActivitySource.
func (r *ActivityRepository) ForumActivity(ctx context.Context, userID string) ([]impact.ForumActivity, error) {
	docs, err := findAll[forumDoc](ctx, r.db.Collection(collForum), "ForumActivity", bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]impact.ForumActivity, 0, len(docs))
	for _, d := range docs {
		out = append(out, impact.ForumActivity{
			ID: d.ID, UserID: d.UserID, Kind: impact.ForumKind(d.Kind),
			Category: d.Category, HelpfulVotes: d.HelpfulVotes, CreatedAt: d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

// MentoringRecords implements impact.ActivitySource.
func (r *ActivityRepository) MentoringRecords(ctx context.Context, userID string) ([]impact.MentoringRecord, error) {
	docs, err := findAll[mentoringDoc](ctx, r.db.Collection(collMentoring), "MentoringRecords", bson.M{"mentor_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]impact.MentoringRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, impact.MentoringRecord{
			ID: d.ID, MentorID: d.MentorID, MenteeID: d.MenteeID,
			Kind: impact.MentoringKind(d.Kind), Active: d.Active, StartedAt: d.StartedAt.UTC(),
		})
	}
	return out, nil
}

// DailyRecords implements impact.ActivitySource.
func (r *ActivityRepository) DailyRecords(ctx context.Context, userID string) ([]impact.DailyRecord, error) {
	docs, err := findAll[dailyDoc](ctx, r.db.Collection(collDaily), "DailyRecords", bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]impact.DailyRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, impact.DailyRecord{ID: d.ID, UserID: d.UserID, Kind: impact.DailyKind(d.Kind), RecordedAt: d.RecordedAt.UTC()})
	}
	return out, nil
}

// CommunityContributions implements impact.ActivitySource.
func (r *ActivityRepository) CommunityContributions(ctx context.Context, userID string) ([]impact.CommunityContribution, error) {
	docs, err := findAll[communityDoc](ctx, r.db.Collection(collCommunity), "CommunityContributions", bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	out := make([]impact.CommunityContribution, 0, len(docs))
	for _, d := range docs {
		out = append(out, impact.CommunityContribution{ID: d.ID, UserID: d.UserID, Kind: d.Kind, Points: d.Points, CreatedAt: d.CreatedAt.UTC()})
	}
	return out, nil
}

// AddResearch implements impact.ActivityRecorder.
func (r *ActivityRepository) AddResearch(ctx context.Context, rec impact.ResearchRecord) error {
	_, err := r.db.Collection(collResearch).InsertOne(ctx, researchDoc{
		ID: rec.ID, UserID: rec.UserID, Type: string(rec.Type), OccurredAt: rec.OccurredAt,
	})
	return translate("AddResearch", err)
}

// AddForum implements impact.ActivityRecorder.
func (r *ActivityRepository) AddForum(ctx context.Context, f impact.ForumActivity) error {
	_, err := r.db.Collection(collForum).InsertOne(ctx, forumDoc{
		ID: f.ID, UserID: f.UserID, Kind: string(f.Kind), Category: f.Category,
		HelpfulVotes: f.HelpfulVotes, CreatedAt: f.CreatedAt,
	})
	return translate("AddForum", err)
}

// AddMentoring implements impact.ActivityRecorder.
func (r *ActivityRepository) AddMentoring(ctx context.Context, m impact.MentoringRecord) error {
	_, err := r.db.Collection(collMentoring).InsertOne(ctx, mentoringDoc{
		ID: m.ID, MentorID: m.MentorID, MenteeID: m.MenteeID, Kind: string(m.Kind),
		Active: m.Active, StartedAt: m.StartedAt,
	})
	return translate("AddMentoring", err)
}

// AddDaily implements impact.ActivityRecorder.
func (r *ActivityRepository) AddDaily(ctx context.Context, d impact.DailyRecord) error {
	_, err := r.db.Collection(collDaily).InsertOne(ctx, dailyDoc{
		ID: d.ID, UserID: d.UserID, Kind: string(d.Kind), RecordedAt: d.RecordedAt,
	})
	return translate("AddDaily", err)
}

// AddCommunity implements impact.ActivityRecorder.
func (r *ActivityRepository) AddCommunity(ctx context.Context, c impact.CommunityContribution) error {
	_, err := r.db.Collection(collCommunity).InsertOne(ctx, communityDoc{
		ID: c.ID, UserID: c.UserID, Kind: c.Kind, Points: c.Points, CreatedAt: c.CreatedAt,
	})
	return translate("AddCommunity", err)
}
