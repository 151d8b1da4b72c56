// Package server boots the AutomataWeaver backend process: secret
// bootstrap, configuration, tracing, storage, the HTTP server, and the
// production keep-alive pinger.
package server

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/automataweaver/backend/internal/auth/google"
	"github.com/automataweaver/backend/internal/auth/local"
	"github.com/automataweaver/backend/internal/auth/token"
	"github.com/automataweaver/backend/internal/auth/user"
	"github.com/automataweaver/backend/internal/keepalive"
	"github.com/automataweaver/backend/internal/platform/config"
	"github.com/automataweaver/backend/internal/platform/otel"
	httpserver "github.com/automataweaver/backend/internal/server"
	"github.com/automataweaver/backend/internal/session"
	"github.com/automataweaver/backend/internal/storage/mongo"
	"github.com/automataweaver/backend/internal/tools/envsecrets"
	"github.com/automataweaver/backend/internal/web"
)

const connectTimeout = 10 * time.Second

// Flags holds the command-line options; everything else comes from the
// environment.
type Flags struct {
	EnvFile string
}

// ParseFlags parses the command line.
func ParseFlags(fs *flag.FlagSet, args []string) (Flags, error) {
	var flags Flags
	fs.StringVar(&flags.EnvFile, "env-file", ".env", "env file holding generated secrets")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	return flags, nil
}

// Run boots the process and serves until the context ends.
func Run(ctx context.Context, flags Flags) error {
	// Generated signing secrets must be in the environment before the
	// configuration snapshot is taken.
	if err := envsecrets.Ensure(flags.EnvFile); err != nil {
		return fmt.Errorf("bootstrap secrets: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	shutdownTracing, err := otel.Setup(ctx, "automataweaver-backend")
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Printf("shutdown tracing: %v", err)
		}
	}()

	var (
		sessionStore session.Store
		userStore    user.Store
	)
	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	store, err := mongo.Open(connectCtx, cfg.MongoURL)
	cancel()
	switch {
	case err == nil:
		sessionStore = store
		userStore = store
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(closeCtx); err != nil {
				log.Printf("close database: %v", err)
			}
		}()
		log.Print("connected to database")
	case cfg.DBFailPolicy == config.Degrade:
		log.Printf("database unavailable, serving unauthenticated: %v", err)
	default:
		return fmt.Errorf("connect database: %w", err)
	}

	renderer, err := web.NewRenderer()
	if err != nil {
		return err
	}

	srv := httpserver.New(httpserver.Options{
		Config:   cfg,
		Sessions: session.NewManager(sessionStore, cfg.SessionSecret, cfg.Production()),
		Users:    userStore,
		Local:    local.NewVerifier(userStore, 0),
		Google:   google.NewProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleCallbackURL),
		Resolver: google.NewResolver(userStore),
		Tokens:   token.NewIssuer(cfg.TokenSecret),
		Renderer: renderer,
	})

	// Free-tier hosts idle the process out; the pinger keeps it warm.
	if cfg.Production() && cfg.ExternalURL != "" {
		pinger := keepalive.New(cfg.ExternalURL)
		go pinger.Run(ctx)
	}

	if err := srv.ListenAndServe(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
