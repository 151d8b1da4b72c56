// Package server wires the AutomataWeaver HTTP surface: CORS, session
// restoration, identity resolution, the auth flows the core owns, and the
// mount points for the business route handlers.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/automataweaver/backend/internal/auth/google"
	"github.com/automataweaver/backend/internal/auth/local"
	"github.com/automataweaver/backend/internal/auth/token"
	"github.com/automataweaver/backend/internal/auth/user"
	"github.com/automataweaver/backend/internal/platform/config"
	"github.com/automataweaver/backend/internal/session"
)

// Renderer is the view layer contract. The template internals live outside
// this core.
type Renderer interface {
	Render(w http.ResponseWriter, name string, data any) error
}

// Options collects the server's collaborators.
type Options struct {
	Config   config.Config
	Sessions *session.Manager
	Users    user.Store
	Local    *local.Verifier
	Google   *google.Provider
	Resolver *google.Resolver
	Tokens   *token.Issuer
	Renderer Renderer

	// UserRoutes and AutomataRoutes are the out-of-scope business handlers
	// mounted under /api and /api/automata.
	UserRoutes     http.Handler
	AutomataRoutes http.Handler
}

// Server hosts the backend HTTP API.
type Server struct {
	cfg      config.Config
	sessions *session.Manager
	users    user.Store
	local    *local.Verifier
	google   *google.Provider
	resolver *google.Resolver
	tokens   *token.Issuer
	renderer Renderer
	handler  http.Handler
}

// New assembles the route table and middleware chain.
func New(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		sessions: opts.Sessions,
		users:    opts.Users,
		local:    opts.Local,
		google:   opts.Google,
		resolver: opts.Resolver,
		tokens:   opts.Tokens,
		renderer: opts.Renderer,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleLanding)
	mux.HandleFunc("GET /redirect", s.handleRedirectPage)

	mux.HandleFunc("POST /api/login", s.handleLogin)
	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/logout", s.handleLogout)
	mux.HandleFunc("GET /api/auth/google", s.handleGoogleStart)
	mux.HandleFunc("GET /api/auth/google/callback", s.handleGoogleCallback)

	if opts.AutomataRoutes != nil {
		mux.Handle("/api/automata/", http.StripPrefix("/api/automata", opts.AutomataRoutes))
	}
	if opts.UserRoutes != nil {
		mux.Handle("/api/", http.StripPrefix("/api", opts.UserRoutes))
	}

	// Outermost first: recovery catches everything, tracing sees the raw
	// request, CORS answers preflights before any session work happens.
	var handler http.Handler = mux
	handler = s.withIdentity(handler)
	handler = s.withSession(handler)
	handler = withBodyLimit(handler)
	handler = s.withCORS(handler)
	handler = s.withTracing(handler)
	handler = s.withRecovery(handler)
	s.handler = handler
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ListenAndServe serves until the context ends, then drains in-flight
// requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.handler,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Printf("server is listening on port %d", s.cfg.Port)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// writeJSON renders a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
