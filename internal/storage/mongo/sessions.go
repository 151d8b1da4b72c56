package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/automataweaver/backend/internal/session"
)

// sessionDoc is the sessions collection document shape, keyed by the
// session id the cookie carries.
type sessionDoc struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"userId,omitempty"`
	FlashSuccess []string  `bson:"flashSuccess,omitempty"`
	FlashError   []string  `bson:"flashError,omitempty"`
	OAuthState   string    `bson:"oauthState,omitempty"`
	CreatedAt    time.Time `bson:"createdAt"`
	ExpiresAt    time.Time `bson:"expiresAt"`
	LastTouched  time.Time `bson:"lastTouched"`
}

func toSessionDoc(s session.Session) sessionDoc {
	return sessionDoc{
		ID:           s.ID,
		UserID:       s.UserID,
		FlashSuccess: s.FlashSuccess,
		FlashError:   s.FlashError,
		OAuthState:   s.OAuthState,
		CreatedAt:    s.CreatedAt,
		ExpiresAt:    s.ExpiresAt,
		LastTouched:  s.LastTouched,
	}
}

func (d sessionDoc) toDomain() *session.Session {
	return &session.Session{
		ID:           d.ID,
		UserID:       d.UserID,
		FlashSuccess: d.FlashSuccess,
		FlashError:   d.FlashError,
		OAuthState:   d.OAuthState,
		CreatedAt:    d.CreatedAt.UTC(),
		ExpiresAt:    d.ExpiresAt.UTC(),
		LastTouched:  d.LastTouched.UTC(),
	}
}

func (s *Store) Get(ctx context.Context, id string) (*session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sessions == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	var doc sessionDoc
	err := s.sessions.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find session: %w", err)
	}
	return doc.toDomain(), nil
}

func (s *Store) Put(ctx context.Context, sess *session.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sessions == nil {
		return fmt.Errorf("storage is not configured")
	}
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("session id is required")
	}

	_, err := s.sessions.ReplaceOne(ctx,
		bson.M{"_id": sess.ID},
		toSessionDoc(*sess),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}
	return nil
}

func (s *Store) Touch(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sessions == nil {
		return fmt.Errorf("storage is not configured")
	}

	_, err := s.sessions.UpdateByID(ctx, id, bson.M{
		"$set": bson.M{"lastTouched": at.UTC()},
	})
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sessions == nil {
		return fmt.Errorf("storage is not configured")
	}

	if _, err := s.sessions.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
