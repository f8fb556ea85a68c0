// Package mongodb implements the engine's repositories on MongoDB. Progress
// documents carry a version number and every write is a compare-and-swap on
// it; a lost race surfaces as shared.ErrConcurrentModification so the grant
// handler can retry.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/fiberfriends/companion-engine/internal/domain/shared"
)

// Collection names.
const (
	collProgress     = "progress_states"
	collGrants       = "point_grants"
	collScores       = "impact_scores"
	collAchievements = "achievements"
	collResearch     = "research_participation"
	collForum        = "forum_activity"
	collMentoring    = "mentoring_records"
	collDaily        = "daily_records"
	collCommunity    = "community_contributions"
)

// Config holds MongoDB connection settings.
type Config struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
	MaxPoolSize    uint64
}

// DefaultConfig returns default settings.
func DefaultConfig() Config {
	return Config{
		URI:            "mongodb://localhost:27017",
		Database:       "companion",
		ConnectTimeout: 10 * time.Second,
		MaxPoolSize:    50,
	}
}

// Client wraps a mongo client bound to one database.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect opens a client and verifies it with a ping.
func Connect(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Database == "" {
		cfg.Database = DefaultConfig().Database
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout)
	if cfg.MaxPoolSize > 0 {
		opts.SetMaxPoolSize(cfg.MaxPoolSize)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, shared.Unavailable("mongodb", "Connect", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, shared.Unavailable("mongodb", "Connect", err)
	}

	return &Client{client: client, db: client.Database(cfg.Database)}, nil
}

// Database returns the bound database.
func (c *Client) Database() *mongo.Database {
	return c.db
}

// Ping checks the primary is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the repositories rely on. The unique
// achievement index is what makes unlocks happen at most once.
func (c *Client) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		collGrants: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		collScores: {
			{Keys: bson.D{{Key: "calculated_at", Value: 1}}},
		},
		collAchievements: {
			{
				Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "achievement_id", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		collResearch:  {{Keys: bson.D{{Key: "user_id", Value: 1}}}},
		collForum:     {{Keys: bson.D{{Key: "user_id", Value: 1}}}},
		collMentoring: {{Keys: bson.D{{Key: "mentor_id", Value: 1}}}},
		collDaily:     {{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "recorded_at", Value: -1}}}},
		collCommunity: {{Keys: bson.D{{Key: "user_id", Value: 1}}}},
	}

	for coll, models := range specs {
		if _, err := c.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongodb: create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// translate maps driver errors to domain errors.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *shared.DomainError
	switch {
	case errors.As(err, &de):
		return err
	case mongo.IsTimeout(err), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return shared.WrapError("mongodb", op, shared.ErrTimeout, "operation timed out", err)
	case mongo.IsDuplicateKeyError(err):
		return shared.WrapError("mongodb", op, shared.ErrConcurrentModification, "duplicate key", err)
	default:
		return shared.Unavailable("mongodb", op, err)
	}
}
