package server

import (
	"context"
	"log"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/automataweaver/backend/internal/platform/requestctx"
	"github.com/automataweaver/backend/internal/session"
)

// sessionContextKey carries the restored session through the request.
type sessionContextKey struct{}

// sessionFromContext returns the request's session, or nil when the store
// was unreachable.
func sessionFromContext(ctx context.Context) *session.Session {
	value, _ := ctx.Value(sessionContextKey{}).(*session.Session)
	return value
}

// withRecovery converts panics into the generic 500 response. Raw error
// detail is only exposed outside production.
func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			log.Printf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
			payload := map[string]any{
				"success": false,
				"message": "An unexpected error occurred",
				"error":   struct{}{},
			}
			if !s.cfg.Production() {
				payload["error"] = toString(rec)
			}
			writeJSON(w, http.StatusInternalServerError, payload)
		}()
		next.ServeHTTP(w, r)
	})
}

// withTracing opens one span per request when a tracer provider is
// registered; otherwise the no-op global tracer keeps this free.
func (s *Server) withTracing(next http.Handler) http.Handler {
	tracer := otel.Tracer("github.com/automataweaver/backend/internal/server")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// maxBodyBytes caps request bodies; the API only ever receives small JSON
// credential payloads.
const maxBodyBytes = 1 << 20

func withBodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// withSession restores (or creates) the request session. Store failures are
// logged and the request proceeds without a session rather than failing.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Load(r.Context(), w, r)
		if err != nil {
			log.Printf("session store error: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), sessionContextKey{}, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withIdentity resolves the session's user reference (or a bearer token)
// into a full user record and attaches it, plus the drained flash queues,
// to the request context. A stale reference degrades to anonymous.
func (s *Server) withIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sess := sessionFromContext(ctx)

		userID := ""
		if sess.Authenticated() {
			userID = sess.UserID
		} else if raw := bearerToken(r); raw != "" && s.tokens != nil {
			if subject, err := s.tokens.Verify(raw); err == nil {
				userID = subject
			}
		}

		if userID != "" && s.users != nil {
			record, err := s.users.FindByID(ctx, userID)
			if err != nil {
				log.Printf("resolve user %s: %v", userID, err)
			} else if record != nil {
				ctx = requestctx.WithUser(ctx, record)
			}
		}

		ctx = requestctx.WithFlashes(ctx, s.sessions.ConsumeFlashes(ctx, sess))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) string {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return ""
	}
	scheme, value, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

func toString(value any) string {
	if err, ok := value.(error); ok {
		return err.Error()
	}
	if s, ok := value.(string); ok {
		return s
	}
	return "internal error"
}
