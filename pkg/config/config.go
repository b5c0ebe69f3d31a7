package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/greg-hellings/forgeclient/pkg/credentials"
)

// KnownBackends lists the backend keys accepted under `backends`.
var KnownBackends = []string{credentials.GitHub, credentials.GitLab}

// Config represents the top-level configuration file structure
type Config struct {
	DefaultBackend string                   `yaml:"default_backend" toml:"default_backend"`
	Backends       map[string]BackendConfig `yaml:"backends" toml:"backends"`
	Cache          CacheConfig              `yaml:"cache" toml:"cache"`
	Retry          RetryConfig              `yaml:"retry" toml:"retry"`
}

// BackendConfig contains per-backend connection settings
type BackendConfig struct {
	BaseURL string `yaml:"base_url" toml:"base_url"`
	Token   string `yaml:"token" toml:"token"`
}

// CacheConfig controls the conditional-request cache
type CacheConfig struct {
	// Path of the JSON index file. Empty keeps the cache in memory.
	Path     string `yaml:"path" toml:"path"`
	Disabled bool   `yaml:"disabled" toml:"disabled"`
}

// RetryConfig overrides the transport retry policy. Zero values keep the
// transport defaults; MaxRetries is a pointer so 0 can disable retries.
type RetryConfig struct {
	MaxRetries *int     `yaml:"max_retries" toml:"max_retries"`
	BaseDelay  Duration `yaml:"base_delay" toml:"base_delay"`
	MaxWait    Duration `yaml:"max_wait" toml:"max_wait"`
}

// Duration is a time.Duration written as a Go duration string ("750ms") in
// config files.
type Duration time.Duration

// Duration returns d as a time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// UnmarshalText implements encoding.TextUnmarshaler, used by the TOML decoder.
func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// DefaultPath returns <user config dir>/forgeclient/config.yaml
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "forgeclient", "config.yaml"), nil
}

// LoadFromFile reads a YAML or TOML configuration file (chosen by extension,
// YAML when unknown) and returns the parsed Config
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	format := "yaml"
	if strings.EqualFold(filepath.Ext(filename), ".toml") {
		format = "toml"
	}
	return Parse(data, format)
}

// Parse decodes data in the given format ("yaml" or "toml"), applies
// defaults and validates the result.
func Parse(data []byte, format string) (*Config, error) {
	var config Config
	switch format {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case "toml":
		if _, err := toml.Decode(string(data), &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// ApplyDefaults normalizes backend keys and trims values
func (c *Config) ApplyDefaults() {
	c.DefaultBackend = strings.ToLower(strings.TrimSpace(c.DefaultBackend))

	normalized := make(map[string]BackendConfig, len(c.Backends))
	for name, bc := range c.Backends {
		bc.BaseURL = strings.TrimSpace(bc.BaseURL)
		bc.Token = strings.TrimSpace(bc.Token)
		normalized[strings.ToLower(strings.TrimSpace(name))] = bc
	}
	c.Backends = normalized

	c.Cache.Path = strings.TrimSpace(c.Cache.Path)
}

// Validate checks backend names and retry settings
func (c *Config) Validate() error {
	var errs []error

	if c.DefaultBackend != "" && !isKnown(c.DefaultBackend) {
		errs = append(errs, fmt.Errorf("default_backend: unknown backend %q (expected one of %s)",
			c.DefaultBackend, strings.Join(KnownBackends, ", ")))
	}

	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !isKnown(name) {
			errs = append(errs, fmt.Errorf("backends: unknown backend %q", name))
			continue
		}
		if u := c.Backends[name].BaseURL; u != "" && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("backends.%s.base_url: must use https, got %q", name, u))
		}
	}

	if c.Retry.MaxRetries != nil && *c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries: must not be negative"))
	}
	if c.Retry.BaseDelay < 0 || c.Retry.MaxWait < 0 {
		errs = append(errs, fmt.Errorf("retry: durations must not be negative"))
	}

	return errors.Join(errs...)
}

// Token returns the configured token for backend, satisfying credentials.Store
func (c *Config) Token(backend string) (string, error) {
	if c == nil {
		return "", credentials.ErrCredentialNotFound
	}
	bc, ok := c.Backends[backend]
	if !ok || bc.Token == "" {
		return "", credentials.ErrCredentialNotFound
	}
	return bc.Token, nil
}

// BaseURL returns the configured base URL for backend, or ""
func (c *Config) BaseURL(backend string) string {
	if c == nil {
		return ""
	}
	return c.Backends[backend].BaseURL
}

func isKnown(name string) bool {
	for _, k := range KnownBackends {
		if k == name {
			return true
		}
	}
	return false
}
