// Package session maintains authenticated browsing contexts backed by a
// durable store and a signed cookie.
package session

import (
	"context"
	"time"
)

// Lifetime is the absolute session lifetime counted from creation.
// Activity never extends it.
const Lifetime = 7 * 24 * time.Hour

// TouchWindow coalesces store bookkeeping refreshes: a session is touched
// at most once per window to reduce store writes.
const TouchWindow = 12 * time.Hour

// Session is one browsing context. UserID holds the serialized user
// reference only; the full record is resolved per request.
type Session struct {
	ID           string
	UserID       string
	FlashSuccess []string
	FlashError   []string
	// OAuthState pins an in-flight federated login to this session so the
	// provider callback can reject forged or replayed states.
	OAuthState  string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	LastTouched time.Time
}

// Expired reports whether the session's absolute lifetime has passed.
func (s *Session) Expired(at time.Time) bool {
	return s == nil || !at.Before(s.ExpiresAt)
}

// Authenticated reports whether a user reference is attached.
func (s *Session) Authenticated() bool {
	return s != nil && s.UserID != ""
}

// AddSuccess queues a one-time success notice for the next render.
func (s *Session) AddSuccess(message string) {
	if s == nil || message == "" {
		return
	}
	s.FlashSuccess = append(s.FlashSuccess, message)
}

// AddError queues a one-time error notice for the next render.
func (s *Session) AddError(message string) {
	if s == nil || message == "" {
		return
	}
	s.FlashError = append(s.FlashError, message)
}

// Store is the durable persistence contract for sessions, keyed by session
// id. Get returns (nil, nil) for unknown ids.
type Store interface {
	Get(ctx context.Context, id string) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
}
