package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/automataweaver/backend/internal/auth/user"
)

// userDoc is the users collection document shape. Field names match the
// documents written by earlier deployments of the application.
type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	Email        string             `bson:"email,omitempty"`
	GoogleID     string             `bson:"googleId,omitempty"`
	PasswordHash string             `bson:"password,omitempty"`
	CreatedAt    time.Time          `bson:"createdAt"`
	UpdatedAt    time.Time          `bson:"updatedAt"`
}

func toUserDoc(u user.User) (userDoc, error) {
	doc := userDoc{
		Username:     u.Username,
		Email:        u.Email,
		GoogleID:     u.GoogleID,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
	if u.ID != "" {
		id, err := primitive.ObjectIDFromHex(u.ID)
		if err != nil {
			return userDoc{}, fmt.Errorf("invalid user id %q: %w", u.ID, err)
		}
		doc.ID = id
	}
	return doc, nil
}

func (d userDoc) toDomain() *user.User {
	return &user.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		GoogleID:     d.GoogleID,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}

// googleIDOrEmailFilter builds the $or lookup used by federated login.
// Empty terms are omitted so an absent email never matches other records
// that also lack one.
func googleIDOrEmailFilter(googleID, email string) bson.M {
	var clauses []bson.M
	if googleID != "" {
		clauses = append(clauses, bson.M{"googleId": googleID})
	}
	if email != "" {
		clauses = append(clauses, bson.M{"email": email})
	}
	if len(clauses) == 0 {
		return nil
	}
	return bson.M{"$or": clauses}
}

func (s *Store) FindByID(ctx context.Context, id string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	objectID, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		// A malformed reference resolves to "no user", the same as a stale one.
		return nil, nil
	}
	return s.findOneUser(ctx, bson.M{"_id": objectID})
}

func (s *Store) FindByUsername(ctx context.Context, username string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	return s.findOneUser(ctx, bson.M{"username": username})
}

func (s *Store) FindByGoogleIDOrEmail(ctx context.Context, googleID, email string) (*user.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.users == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	filter := googleIDOrEmailFilter(googleID, email)
	if filter == nil {
		return nil, nil
	}
	return s.findOneUser(ctx, filter)
}

func (s *Store) Insert(ctx context.Context, u *user.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.users == nil {
		return fmt.Errorf("storage is not configured")
	}
	if u == nil {
		return fmt.Errorf("user is required")
	}

	doc, err := toUserDoc(*u)
	if err != nil {
		return err
	}
	if doc.ID.IsZero() {
		doc.ID = primitive.NewObjectID()
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	u.ID = doc.ID.Hex()
	return nil
}

func (s *Store) SetGoogleID(ctx context.Context, id, googleID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.users == nil {
		return fmt.Errorf("storage is not configured")
	}
	objectID, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", id, err)
	}

	result, err := s.users.UpdateByID(ctx, objectID, bson.M{
		"$set": bson.M{
			"googleId":  googleID,
			"updatedAt": time.Now().UTC(),
		},
	})
	if err != nil {
		return fmt.Errorf("set google id: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("user %s not found", id)
	}
	return nil
}

func (s *Store) findOneUser(ctx context.Context, filter bson.M) (*user.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}
