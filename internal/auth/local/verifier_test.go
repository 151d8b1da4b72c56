package local

import (
	"context"
	"errors"
	"testing"

	"github.com/automataweaver/backend/internal/auth/authtest"
	"github.com/automataweaver/backend/internal/auth/user"
	apperrors "github.com/automataweaver/backend/internal/platform/errors"
)

func seedUser(t *testing.T, store *authtest.UserStore, v *Verifier, username, password string) user.User {
	t.Helper()
	hash, err := v.HashPassword(password)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return store.Seed(user.User{Username: username, Email: username + "@example.com", PasswordHash: hash})
}

func TestVerifyKnownUser(t *testing.T) {
	store := authtest.NewUserStore()
	v := NewVerifier(store, 4)
	seeded := seedUser(t, store, v, "ada", "correct horse")

	got, err := v.Verify(context.Background(), "ada", "correct horse")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.ID != seeded.ID {
		t.Fatalf("verified user %s, want %s", got.ID, seeded.ID)
	}
}

func TestVerifyFailuresAreIndistinguishable(t *testing.T) {
	store := authtest.NewUserStore()
	v := NewVerifier(store, 4)
	seedUser(t, store, v, "ada", "correct horse")

	_, unknownErr := v.Verify(context.Background(), "nobody", "whatever")
	_, wrongErr := v.Verify(context.Background(), "ada", "wrong password")

	if !errors.Is(unknownErr, ErrAuthenticationFailed) {
		t.Fatalf("unknown user error = %v, want ErrAuthenticationFailed", unknownErr)
	}
	if !errors.Is(wrongErr, ErrAuthenticationFailed) {
		t.Fatalf("wrong password error = %v, want ErrAuthenticationFailed", wrongErr)
	}
	if unknownErr.Error() != wrongErr.Error() {
		t.Fatalf("error messages differ: %q vs %q", unknownErr, wrongErr)
	}
}

func TestVerifyUserWithoutLocalCredentials(t *testing.T) {
	store := authtest.NewUserStore()
	v := NewVerifier(store, 4)
	store.Seed(user.User{Username: "federated-only", Email: "f@example.com", GoogleID: "google-1"})

	_, err := v.Verify(context.Background(), "federated-only", "anything")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}
}

func TestVerifyStoreFailure(t *testing.T) {
	store := authtest.NewUserStore()
	store.FailWith = errors.New("connection reset")
	v := NewVerifier(store, 4)

	_, err := v.Verify(context.Background(), "ada", "correct horse")
	if apperrors.CodeOf(err) != apperrors.CodeStorageUnavailable {
		t.Fatalf("expected StorageUnavailable, got %v", err)
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	v := NewVerifier(authtest.NewUserStore(), 4)
	hash, err := v.HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" || hash == "secret123" {
		t.Fatalf("hash = %q, want bcrypt output", hash)
	}
}
