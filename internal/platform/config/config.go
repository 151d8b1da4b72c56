// Package config builds the immutable process configuration for the
// AutomataWeaver backend.
//
// Configuration is read from the environment exactly once at startup and
// passed by value to every component. Secret material (session and token
// signing secrets, OAuth client credentials) is never re-read after boot,
// even if the backing .env file changes while the process runs.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
)

// FailPolicy controls how startup reacts to a failed database connection.
type FailPolicy string

const (
	// FailFast aborts startup when the database is unreachable.
	FailFast FailPolicy = "fail-fast"
	// Degrade logs the failure and serves requests unauthenticated.
	Degrade FailPolicy = "degrade"
)

// Config holds every recognized environment option. The field tags keep the
// variable names used by existing deployments.
type Config struct {
	MongoURL           string     `env:"ATLASDB_URL"`
	SessionSecret      string     `env:"SECRET"`
	TokenSecret        string     `env:"JWT_SECRET"`
	GoogleClientID     string     `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string     `env:"GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string     `env:"GOOGLE_CALLBACK_URL"`
	FrontendURL        string     `env:"FRONTEND_URL"`
	Environment        string     `env:"NODE_ENV" envDefault:"development"`
	ExternalURL        string     `env:"RENDER_EXTERNAL_URL"`
	Port               int        `env:"PORT" envDefault:"8080"`
	DBFailPolicy       FailPolicy `env:"DB_FAIL_POLICY" envDefault:"fail-fast"`
}

// Load parses the process environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	switch cfg.DBFailPolicy {
	case FailFast, Degrade:
	default:
		return Config{}, fmt.Errorf("invalid DB_FAIL_POLICY %q", cfg.DBFailPolicy)
	}
	return cfg, nil
}

// Validate reports the required options missing from the configuration.
func (c Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.MongoURL) == "" {
		missing = append(missing, "ATLASDB_URL")
	}
	if strings.TrimSpace(c.SessionSecret) == "" {
		missing = append(missing, "SECRET")
	}
	if strings.TrimSpace(c.TokenSecret) == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Production reports whether the process runs in the production deployment mode.
func (c Config) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Exitf writes a formatted error message to stderr and exits with code 1.
// It provides a consistent fatal-exit pattern for CLI entry points.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
