// Package user provides the account domain model shared by every
// authentication path.
package user

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/automataweaver/backend/internal/platform/errors"
)

// ErrEmptyUsername indicates a missing display name.
var ErrEmptyUsername = apperrors.New(apperrors.CodeMissingRequiredAttribute, "username is required")

// User represents one account. An account is addressable by its GoogleID or
// by its Email; a record matched by email without a GoogleID may later have
// one attached (account linking).
type User struct {
	ID           string
	Username     string
	Email        string
	GoogleID     string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateUserInput describes the metadata needed to create a user.
type CreateUserInput struct {
	Username     string
	Email        string
	GoogleID     string
	PasswordHash string
}

// New builds a user record from validated input. The storage layer assigns
// the ID on insert.
func New(input CreateUserInput, now func() time.Time) (User, error) {
	if now == nil {
		now = time.Now
	}

	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" {
		return User{}, ErrEmptyUsername
	}
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))

	createdAt := now().UTC()
	return User{
		Username:     input.Username,
		Email:        input.Email,
		GoogleID:     input.GoogleID,
		PasswordHash: input.PasswordHash,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}, nil
}

// Store is the persistence contract for user records. Lookups return
// (nil, nil) when no record matches.
type Store interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByGoogleIDOrEmail(ctx context.Context, googleID, email string) (*User, error)
	Insert(ctx context.Context, u *User) error
	SetGoogleID(ctx context.Context, id, googleID string) error
}

// String renders a loggable reference without secret material.
func (u User) String() string {
	return fmt.Sprintf("user(%s)", u.ID)
}
