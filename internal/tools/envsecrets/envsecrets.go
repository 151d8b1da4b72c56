// Package envsecrets generates the signing secrets the backend requires
// before it can start.
//
// The session secret (SECRET) signs session cookies; the token secret
// (JWT_SECRET) signs API bearer tokens. Both are 32 random bytes rendered as
// hex. Generation is one-shot and idempotent: values already present in the
// .env file or the process environment are never regenerated, even across
// restarts.
package envsecrets

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RequiredKeys are the secret variables the bootstrap sequencer checks for.
var RequiredKeys = []string{"SECRET", "JWT_SECRET"}

const secretBytes = 32

// Generate ensures every required secret key has a value in the .env file at
// path, preserving unrelated lines and existing values. It returns the keys
// it generated. A nil reader defaults to crypto/rand.
func Generate(path string, reader io.Reader) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("env file path is required")
	}
	if reader == nil {
		reader = rand.Reader
	}

	existing, lines, err := readEnvFile(path)
	if err != nil {
		return nil, err
	}

	var generated []string
	for _, key := range RequiredKeys {
		if existing[key] != "" {
			continue
		}
		value, err := randomHex(reader)
		if err != nil {
			return nil, fmt.Errorf("generate %s: %w", key, err)
		}
		lines = append(lines, key+"="+value)
		existing[key] = value
		generated = append(generated, key)
	}
	if len(generated) == 0 {
		return nil, nil
	}

	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return nil, fmt.Errorf("write env file: %w", err)
	}
	return generated, nil
}

// Ensure makes the required secrets available in the process environment,
// generating any that are missing into the .env file at path. Only the
// secret keys themselves are loaded back; other variables already present in
// the environment are left untouched.
func Ensure(path string) error {
	missing := false
	for _, key := range RequiredKeys {
		if os.Getenv(key) == "" {
			missing = true
			break
		}
	}
	if !missing {
		return nil
	}

	if _, err := Generate(path, nil); err != nil {
		return err
	}

	values, _, err := readEnvFile(path)
	if err != nil {
		return err
	}
	for _, key := range RequiredKeys {
		if os.Getenv(key) != "" {
			continue
		}
		value := values[key]
		if value == "" {
			return fmt.Errorf("secret %s missing after generation", key)
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set %s: %w", key, err)
		}
	}
	return nil
}

// readEnvFile parses a dotenv-style file into a key/value map plus its raw
// lines. A missing file yields empty results.
func readEnvFile(path string) (map[string]string, []string, error) {
	values := make(map[string]string)

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return values, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read env file: %w", err)
	}

	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(lines) == 1 && lines[0] == "" {
		lines = nil
	}
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(trimmed, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return values, lines, nil
}

func randomHex(reader io.Reader) (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
