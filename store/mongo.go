package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sweetpotato0/arborflow/assessment"
	"github.com/sweetpotato0/arborflow/config"
	arberrors "github.com/sweetpotato0/arborflow/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements ReportStore using MongoDB
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// MongoConfig holds MongoDB connection configuration
type MongoConfig struct {
	URI        string
	Database   string
	Collection string
}

// DefaultMongoConfig returns default MongoDB configuration
func DefaultMongoConfig() *MongoConfig {
	return &MongoConfig{
		URI:        "mongodb://localhost:27017",
		Database:   "arborflow",
		Collection: "assessments",
	}
}

// mongoSnapshot is the internal representation for MongoDB
type mongoSnapshot struct {
	ID        string               `bson:"_id"`
	Snapshot  *assessment.Snapshot `bson:"snapshot"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

// NewMongoStore creates a new MongoDB-based report store
func NewMongoStore(cfg *MongoConfig) (*MongoStore, error) {
	if cfg == nil {
		cfg = DefaultMongoConfig()
	}
	if err := config.ValidateMongoConfig(cfg.URI, cfg.Database, cfg.Collection); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
	}, nil
}

// Save upserts the snapshot document for its session.
func (s *MongoStore) Save(ctx context.Context, snap *assessment.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return arberrors.ErrInvalidInput
	}
	doc := mongoSnapshot{
		ID:        snap.SessionID,
		Snapshot:  snap,
		UpdatedAt: time.Now(),
	}
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": snap.SessionID},
		doc,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot in MongoDB: %w", err)
	}
	return nil
}

// Load returns the stored snapshot for a session.
func (s *MongoStore) Load(ctx context.Context, sessionID string) (*assessment.Snapshot, error) {
	var doc mongoSnapshot
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, arberrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot from MongoDB: %w", err)
	}
	return doc.Snapshot, nil
}

// List returns the session ids with stored snapshots.
func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	cursor, err := s.collection.Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots in MongoDB: %w", err)
	}
	defer cursor.Close(ctx)

	var ids []string
	for cursor.Next(ctx) {
		var doc struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot id: %w", err)
		}
		ids = append(ids, doc.ID)
	}
	return ids, cursor.Err()
}

// Delete removes the snapshot for a session.
func (s *MongoStore) Delete(ctx context.Context, sessionID string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": sessionID})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot from MongoDB: %w", err)
	}
	if res.DeletedCount == 0 {
		return arberrors.ErrNotFound
	}
	return nil
}

// Close disconnects from MongoDB.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
