// Package local verifies username/password credentials against stored
// bcrypt hashes.
package local

import (
	"context"

	"golang.org/x/crypto/bcrypt"

	"github.com/automataweaver/backend/internal/auth/user"
	apperrors "github.com/automataweaver/backend/internal/platform/errors"
)

// ErrAuthenticationFailed is returned for every credential failure. The
// message never distinguishes an unknown user from a wrong password, to
// avoid user enumeration.
var ErrAuthenticationFailed = apperrors.New(apperrors.CodeAuthenticationFailed, "authentication failed")

// dummyHash is compared against when no user record matches, so the missing
// and mismatching cases cost roughly the same bcrypt work.
var dummyHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte("automataweaver-dummy"), bcrypt.DefaultCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

// Verifier validates submitted credentials. It is read-only; registration
// and password changes belong to the route handlers.
type Verifier struct {
	users user.Store
	cost  int
}

// NewVerifier creates a Verifier over the given user store. A non-positive
// cost falls back to the bcrypt default.
func NewVerifier(users user.Store, cost int) *Verifier {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Verifier{users: users, cost: cost}
}

// Verify looks up the user by username and compares the password against
// the stored hash. Storage failures surface as StorageUnavailable; every
// credential failure is ErrAuthenticationFailed.
func (v *Verifier) Verify(ctx context.Context, username, password string) (user.User, error) {
	if v == nil || v.users == nil {
		return user.User{}, apperrors.New(apperrors.CodeStorageUnavailable, "user store is not configured")
	}

	record, err := v.users.FindByUsername(ctx, username)
	if err != nil {
		return user.User{}, apperrors.Wrap(apperrors.CodeStorageUnavailable, "look up user", err)
	}
	if record == nil || record.PasswordHash == "" {
		// Burn comparable work before failing so the two refusal paths are
		// not trivially distinguishable by timing.
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return user.User{}, ErrAuthenticationFailed
	}
	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return user.User{}, ErrAuthenticationFailed
	}
	return *record, nil
}

// HashPassword produces a bcrypt hash suitable for storage. Exposed for the
// registration route handlers so hashing policy stays in one place.
func (v *Verifier) HashPassword(password string) (string, error) {
	cost := bcrypt.DefaultCost
	if v != nil && v.cost > 0 {
		cost = v.cost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
