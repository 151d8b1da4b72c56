package session

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/automataweaver/backend/internal/platform/errors"
	"github.com/automataweaver/backend/internal/platform/requestctx"
)

// Manager issues, persists, and restores sessions. All policy is fixed at
// startup: absolute 7-day expiry, 12-hour touch coalescing, persist
// uninitialized sessions so pre-auth flash messages survive a redirect, and
// no rewrite of unchanged data on reads.
type Manager struct {
	store  Store
	secret []byte
	secure bool

	now   func() time.Time
	newID func() string
}

// NewManager creates a session Manager. secure marks cookies
// transport-restricted and must be true whenever the front end is served
// cross-site over HTTPS.
func NewManager(store Store, secret string, secure bool) *Manager {
	return &Manager{
		store:  store,
		secret: []byte(secret),
		now:    time.Now,
		newID:  uuid.NewString,
		secure: secure,
	}
}

// Load restores the request's session, creating and persisting a fresh
// anonymous one when the cookie is missing, unsigned, stale, or expired.
// Store failures surface as SessionStoreError; callers log them and let
// the request proceed unauthenticated.
func (m *Manager) Load(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Session, error) {
	if m == nil || m.store == nil {
		return nil, apperrors.New(apperrors.CodeSessionStore, "session store is not configured")
	}
	now := m.now().UTC()

	if value, ok := readCookie(r); ok {
		if id, ok := parseSignedValue(value, m.secret); ok {
			sess, err := m.store.Get(ctx, id)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeSessionStore, "load session", err)
			}
			if sess != nil {
				if sess.Expired(now) {
					// Absolute lifetime reached; the record is gone no matter
					// how recently the client was active.
					_ = m.store.Delete(ctx, id)
				} else {
					m.touch(ctx, sess, now)
					return sess, nil
				}
			}
		}
	}

	return m.create(ctx, w, "", now)
}

// Save persists explicit session mutations.
func (m *Manager) Save(ctx context.Context, sess *Session) error {
	if m == nil || m.store == nil || sess == nil {
		return apperrors.New(apperrors.CodeSessionStore, "session store is not configured")
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return apperrors.Wrap(apperrors.CodeSessionStore, "save session", err)
	}
	return nil
}

// Renew discards the current session and issues a fresh one bound to the
// user, so a pre-login session id never becomes an authenticated one.
func (m *Manager) Renew(ctx context.Context, w http.ResponseWriter, old *Session, userID string) (*Session, error) {
	if m == nil || m.store == nil {
		return nil, apperrors.New(apperrors.CodeSessionStore, "session store is not configured")
	}
	if old != nil {
		if err := m.store.Delete(ctx, old.ID); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeSessionStore, "discard session", err)
		}
	}
	return m.create(ctx, w, userID, m.now().UTC())
}

// Destroy deletes the session record and expires the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if m == nil || m.store == nil {
		return apperrors.New(apperrors.CodeSessionStore, "session store is not configured")
	}
	clearCookie(w, m.secure)
	if sess == nil {
		return nil
	}
	if err := m.store.Delete(ctx, sess.ID); err != nil {
		return apperrors.Wrap(apperrors.CodeSessionStore, "destroy session", err)
	}
	return nil
}

// ConsumeFlashes drains both message queues (single-read) and persists the
// cleared session when anything was queued.
func (m *Manager) ConsumeFlashes(ctx context.Context, sess *Session) requestctx.Flashes {
	if sess == nil {
		return requestctx.Flashes{}
	}
	flashes := requestctx.Flashes{Success: sess.FlashSuccess, Error: sess.FlashError}
	if len(flashes.Success) == 0 && len(flashes.Error) == 0 {
		return flashes
	}
	sess.FlashSuccess = nil
	sess.FlashError = nil
	_ = m.Save(ctx, sess)
	return flashes
}

// create persists a new session and sets its cookie. An empty userID makes
// an anonymous (uninitialized) session.
func (m *Manager) create(ctx context.Context, w http.ResponseWriter, userID string, now time.Time) (*Session, error) {
	sess := &Session{
		ID:          m.newID(),
		UserID:      userID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(Lifetime),
		LastTouched: now,
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSessionStore, "create session", err)
	}
	writeCookie(w, sess.ID, sess.ExpiresAt, m.secret, m.secure)
	return sess, nil
}

// touch refreshes store bookkeeping at most once per TouchWindow. Touch
// failures are deliberately swallowed: bookkeeping lag never fails a read.
func (m *Manager) touch(ctx context.Context, sess *Session, now time.Time) {
	if now.Sub(sess.LastTouched) < TouchWindow {
		return
	}
	if err := m.store.Touch(ctx, sess.ID, now); err == nil {
		sess.LastTouched = now
	}
}
