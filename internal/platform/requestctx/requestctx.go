// Package requestctx carries per-request identity and notices through
// context values so handlers never reach into ambient state.
package requestctx

import (
	"context"

	"github.com/automataweaver/backend/internal/auth/user"
)

// userContextKey is the context key for the resolved request user.
type userContextKey struct{}

// flashesContextKey is the context key for one-time notices.
type flashesContextKey struct{}

// Flashes holds the transient message queues consumed by the view layer.
// Each queue is single-read: the session manager drains it when building
// the request context.
type Flashes struct {
	Success []string
	Error   []string
}

// WithUser stores the resolved user in context. A nil user marks the
// request as anonymous.
func WithUser(ctx context.Context, u *user.User) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userContextKey{}, u)
}

// UserFromContext returns the resolved user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *user.User {
	if ctx == nil {
		return nil
	}
	value, _ := ctx.Value(userContextKey{}).(*user.User)
	return value
}

// WithFlashes stores the drained flash queues in context.
func WithFlashes(ctx context.Context, f Flashes) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, flashesContextKey{}, f)
}

// FlashesFromContext returns the flash queues placed by the session
// middleware, or empty queues when none were set.
func FlashesFromContext(ctx context.Context) Flashes {
	if ctx == nil {
		return Flashes{}
	}
	value, _ := ctx.Value(flashesContextKey{}).(Flashes)
	return value
}
