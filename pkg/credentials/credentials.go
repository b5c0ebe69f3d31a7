// Package credentials resolves which token forgeclient presents to a backend.
//
// Lookup order for a backend (first match wins):
//  1. Backend environment variables, in priority order
//     (GITHUB_TOKEN, GH_TOKEN / GITLAB_TOKEN, GITLAB_PRIVATE_TOKEN)
//  2. A structured configuration previously loaded by the caller
//  3. For GitHub only, a legacy plaintext token file under the user config dir
//
// Tokens are never logged raw; use RedactToken before emitting them.
package credentials

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

// Backend names understood by this package.
const (
	GitHub = "github"
	GitLab = "gitlab"
)

// ErrCredentialNotFound is returned by a Store that holds no token for a backend.
var ErrCredentialNotFound = errors.New("credential not found")

// Store is a read-only source of tokens keyed by backend name.
type Store interface {
	// Token returns the token for backend or ErrCredentialNotFound.
	Token(backend string) (string, error)
}

// MemoryStore is a thread-safe, volatile Store. Useful for tests and for
// tokens supplied interactively.
type MemoryStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[string]string)}
}

// SetToken stores or updates the token for backend.
func (s *MemoryStore) SetToken(backend, token string) error {
	if backend == "" {
		return errors.New("backend cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[backend] = token
	return nil
}

// Token returns the token for backend or ErrCredentialNotFound.
func (s *MemoryStore) Token(backend string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.tokens[backend]
	if !ok {
		return "", ErrCredentialNotFound
	}
	return v, nil
}

// DeleteToken removes the token for backend; missing backends are ignored.
func (s *MemoryStore) DeleteToken(backend string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, backend)
}

// EnvFunc looks up an environment variable, like os.LookupEnv.
type EnvFunc func(key string) (string, bool)

var envVars = map[string][]string{
	GitHub: {"GITHUB_TOKEN", "GH_TOKEN"},
	GitLab: {"GITLAB_TOKEN", "GITLAB_PRIVATE_TOKEN"},
}

var baseURLEnvVars = map[string]string{
	GitHub: "GITHUB_API_URL",
	GitLab: "GITLAB_API_URL",
}

// EnvVars returns the token variables for backend in priority order.
func EnvVars(backend string) []string {
	return append([]string(nil), envVars[backend]...)
}

// BaseURLEnvVar returns the variable that overrides backend's API base URL.
func BaseURLEnvVar(backend string) string {
	return baseURLEnvVars[backend]
}

// LegacyTokenPath is the plaintext GitHub token file consulted last.
func LegacyTokenPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "forgeclient", "github_token"), nil
}

// Resolution is a resolved token and where it came from.
type Resolution struct {
	Token string
	// Source is the environment variable name, "config", or the legacy file path.
	Source string
}

// Resolver implements the lookup order described in the package comment.
type Resolver struct {
	// Env defaults to os.LookupEnv.
	Env EnvFunc

	// Config is the structured configuration, may be nil.
	Config Store

	// LegacyFiles maps a backend to a plaintext token file. NewResolver
	// registers the GitHub legacy path.
	LegacyFiles map[string]string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// NewResolver returns a Resolver reading the process environment, cfg
// (may be nil) and the GitHub legacy token file.
func NewResolver(cfg Store) *Resolver {
	r := &Resolver{Env: os.LookupEnv, Config: cfg, LegacyFiles: map[string]string{}}
	if path, err := LegacyTokenPath(); err == nil {
		r.LegacyFiles[GitHub] = path
	}
	return r
}

func (r *Resolver) env() EnvFunc {
	if r.Env == nil {
		return os.LookupEnv
	}
	return r.Env
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

// Lookup returns the trimmed value of key, or "" when unset.
func (r *Resolver) Lookup(key string) string {
	v, _ := r.env()(key)
	return strings.TrimSpace(v)
}

// Resolve finds a token for backend. When nothing is found it returns a
// forgeerr NoCredential error naming every place it checked.
func (r *Resolver) Resolve(backend string) (Resolution, error) {
	if backend == "" {
		return Resolution{}, errors.New("backend cannot be empty")
	}

	var checked []string

	for _, name := range envVars[backend] {
		checked = append(checked, name)
		if tok := r.Lookup(name); tok != "" {
			return r.accept(backend, Resolution{Token: tok, Source: name}), nil
		}
	}

	checked = append(checked, fmt.Sprintf("config:backends.%s.token", backend))
	if r.Config != nil {
		tok, err := r.Config.Token(backend)
		switch {
		case err == nil && strings.TrimSpace(tok) != "":
			return r.accept(backend, Resolution{Token: strings.TrimSpace(tok), Source: "config"}), nil
		case err != nil && !errors.Is(err, ErrCredentialNotFound):
			return Resolution{}, fmt.Errorf("config credential lookup: %w", err)
		}
	}

	if path := r.LegacyFiles[backend]; path != "" {
		checked = append(checked, path)
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if tok := strings.TrimSpace(string(data)); tok != "" {
				r.logger().Warn("Using legacy plaintext token file; prefer an environment variable or the config file",
					"backend", backend, "path", path)
				return r.accept(backend, Resolution{Token: tok, Source: path}), nil
			}
		case !errors.Is(err, fs.ErrNotExist):
			return Resolution{}, fmt.Errorf("failed to read legacy token file: %w", err)
		}
	}

	return Resolution{}, forgeerr.NoCredential(backend, checked...)
}

// accept runs the format heuristics; a suspicious token is logged, not rejected.
func (r *Resolver) accept(backend string, res Resolution) Resolution {
	if err := Validate(backend, res.Token); err != nil {
		r.logger().Warn("Token format looks unusual",
			"backend", backend,
			"source", res.Source,
			"token", RedactToken(res.Token),
			"reason", err.Error())
	} else {
		r.logger().Debug("Resolved credential", "backend", backend, "source", res.Source)
	}
	return res
}

// RedactToken safely redacts a token for logging purposes.
func RedactToken(tok string) string {
	if tok == "" {
		return ""
	}
	if len(tok) <= 4 {
		return "***"
	}
	return tok[:4] + "***"
}
