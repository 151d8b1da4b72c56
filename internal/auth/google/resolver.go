package google

import (
	"context"
	"strings"
	"time"

	"github.com/automataweaver/backend/internal/auth/user"
	apperrors "github.com/automataweaver/backend/internal/platform/errors"
)

// ErrMissingEmail indicates a provider profile without any usable email.
// A federated login cannot proceed without an addressable identity.
var ErrMissingEmail = apperrors.New(apperrors.CodeMissingRequiredAttribute, "no email found in Google profile")

// Resolver maps provider profiles onto local user records.
type Resolver struct {
	users user.Store
	now   func() time.Time
}

// NewResolver creates a Resolver over the given user store.
func NewResolver(users user.Store) *Resolver {
	return &Resolver{users: users, now: time.Now}
}

// Resolve returns the local user for a provider profile, creating or
// linking records as needed:
//
//  1. match by GoogleID == subject OR email == first profile email
//  2. no match: create a new user carrying name, subject, and email
//  3. matched by email without a GoogleID: attach the subject (linking)
//  4. matched with the GoogleID already present: no mutation
//
// Persistence failures abort the login; no partial state is returned.
func (r *Resolver) Resolve(ctx context.Context, profile Profile) (user.User, error) {
	if r == nil || r.users == nil {
		return user.User{}, apperrors.New(apperrors.CodeStorageUnavailable, "user store is not configured")
	}

	email := firstEmail(profile.Emails)
	if email == "" {
		return user.User{}, ErrMissingEmail
	}

	existing, err := r.users.FindByGoogleIDOrEmail(ctx, profile.Subject, email)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "look up user", err)
	}

	if existing == nil {
		created, err := user.New(user.CreateUserInput{
			Username: profile.DisplayName,
			Email:    email,
			GoogleID: profile.Subject,
		}, r.now)
		if err != nil {
			return user.User{}, err
		}
		if err := r.users.Insert(ctx, &created); err != nil {
			return user.User{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "create user", err)
		}
		return created, nil
	}

	if existing.GoogleID == "" {
		if err := r.users.SetGoogleID(ctx, existing.ID, profile.Subject); err != nil {
			return user.User{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "link google identity", err)
		}
		existing.GoogleID = profile.Subject
	}
	return *existing, nil
}

func firstEmail(emails []string) string {
	for _, email := range emails {
		if trimmed := strings.ToLower(strings.TrimSpace(email)); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
