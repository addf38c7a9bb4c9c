// Package store persists comments in MongoDB.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aluiziolira/go-scrape-reviews/config"
	"github.com/aluiziolira/go-scrape-reviews/models"
)

// Client owns one connection pool and the database comments live in.
type Client struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// Connect opens a client for cfg and pings the server.
func Connect(ctx context.Context, cfg config.MongoConfig) (*Client, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo uri is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("mongo database is required")
	}

	opts := options.Client().ApplyURI(cfg.URI)
	if cfg.Timeout > 0 {
		opts.SetConnectTimeout(cfg.Timeout).SetServerSelectionTimeout(cfg.Timeout)
	}
	if cfg.Username != "" {
		opts.SetAuth(options.Credential{
			Username:   cfg.Username,
			Password:   cfg.Password,
			AuthSource: cfg.AuthSource,
		})
	}

	cli, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Client{
		client:  cli,
		db:      cli.Database(cfg.Database),
		timeout: cfg.Timeout,
	}, nil
}

// Comments returns the store for the named collection.
func (c *Client) Comments(name string) *CommentStore {
	return &CommentStore{
		coll:    c.db.Collection(name),
		timeout: c.timeout,
	}
}

// Close disconnects the client.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CommentStore reads and writes one collection of comments. It satisfies
// pipeline.Sink.
type CommentStore struct {
	coll    *mongo.Collection
	timeout time.Duration
}

// Name is the collection name.
func (s *CommentStore) Name() string {
	return s.coll.Name()
}

// EnsureIndexes creates the query indexes used by the report endpoints.
func (s *CommentStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "reviewer_id", Value: 1}}},
		{Keys: bson.D{{Key: "rating", Value: 1}}},
		{Keys: bson.D{{Key: "published_at", Value: 1}}},
		{Keys: bson.D{{Key: "useful_votes", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes on %s: %w", s.coll.Name(), err)
	}
	return nil
}

// InsertMany writes comments as one unordered bulk insert. An empty batch is
// a no-op.
func (s *CommentStore) InsertMany(ctx context.Context, comments []*models.Comment) error {
	if len(comments) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(comments))
	for _, comment := range comments {
		docs = append(docs, comment)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.coll.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false)); err != nil {
		return fmt.Errorf("insert %d comments into %s: %w", len(comments), s.coll.Name(), err)
	}
	return nil
}

// Close is a no-op; the Client owns the connection.
func (s *CommentStore) Close() error {
	return nil
}

// All loads every comment in insertion order.
func (s *CommentStore) All(ctx context.Context) ([]models.Comment, error) {
	return s.find(ctx, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// Page loads limit comments after skipping skip, in insertion order.
func (s *CommentStore) Page(ctx context.Context, skip, limit int64) ([]models.Comment, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetSkip(skip).
		SetLimit(limit)
	return s.find(ctx, opts)
}

// Count returns the number of stored comments.
func (s *CommentStore) Count(ctx context.Context) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	n, err := s.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", s.coll.Name(), err)
	}
	return n, nil
}

func (s *CommentStore) find(ctx context.Context, opts *options.FindOptions) ([]models.Comment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find in %s: %w", s.coll.Name(), err)
	}
	defer cur.Close(ctx)

	out := []models.Comment{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.coll.Name(), err)
	}
	return out, nil
}

func (s *CommentStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
