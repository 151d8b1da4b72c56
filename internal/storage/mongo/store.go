// Package mongo implements user and session persistence over a MongoDB
// document database.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	apperrors "github.com/automataweaver/backend/internal/platform/errors"
)

// DatabaseName is the document database holding the backend's collections.
const DatabaseName = "AutomataWeaver"

const (
	usersCollection    = "users"
	sessionsCollection = "sessions"
)

// Store implements user.Store and session.Store over shared Mongo
// collections. One Store is opened at startup and reused by every request.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	sessions *mongo.Collection
}

// Open connects to the document database and verifies the connection with a
// ping. Failures surface as StorageUnavailable so the bootstrap sequencer
// can apply its fail policy.
func Open(ctx context.Context, url string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(url))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "connect to database", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, apperrors.Wrap(apperrors.CodeStorageUnavailable, "ping database", err)
	}

	db := client.Database(DatabaseName)
	store := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		sessions: db.Collection(sessionsCollection),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return store, nil
}

// Close disconnects from the database.
func (s *Store) Close(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

// ensureIndexes creates the uniqueness and expiry indexes the data model
// relies on: unique user emails and storage-side reaping of sessions past
// their absolute lifetime.
func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "create email index", err)
	}

	_, err = s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expiresAt", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageUnavailable, "create session expiry index", err)
	}
	return nil
}
