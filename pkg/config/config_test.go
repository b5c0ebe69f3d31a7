package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/greg-hellings/forgeclient/pkg/credentials"
)

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		content     string
		wantErr     bool
		validateFn  func(*testing.T, *Config)
		description string
	}{
		{
			name:     "valid yaml config",
			filename: "config.yaml",
			content: `
default_backend: GitLab
backends:
  github:
    token: "ghp_fromfile"
  GitLab:
    base_url: " https://gitlab.example.com/api/v4/ "
    token: glpat-fromfile
cache:
  path: /tmp/forgeclient-cache.json
retry:
  max_retries: 5
  base_delay: 250ms
  max_wait: 2m
`,
			description: "Should load YAML and normalize backend keys",
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.DefaultBackend != "gitlab" {
					t.Errorf("Expected default backend 'gitlab', got '%s'", cfg.DefaultBackend)
				}
				if got := cfg.BaseURL("gitlab"); got != "https://gitlab.example.com/api/v4/" {
					t.Errorf("Expected trimmed gitlab base URL, got '%s'", got)
				}
				if tok, err := cfg.Token("github"); err != nil || tok != "ghp_fromfile" {
					t.Errorf("Expected github token 'ghp_fromfile', got '%s' (%v)", tok, err)
				}
				if cfg.Cache.Path != "/tmp/forgeclient-cache.json" {
					t.Errorf("Expected cache path, got '%s'", cfg.Cache.Path)
				}
				if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 5 {
					t.Errorf("Expected max_retries 5, got %v", cfg.Retry.MaxRetries)
				}
				if time.Duration(cfg.Retry.BaseDelay) != 250*time.Millisecond {
					t.Errorf("Expected base_delay 250ms, got %v", time.Duration(cfg.Retry.BaseDelay))
				}
				if time.Duration(cfg.Retry.MaxWait) != 2*time.Minute {
					t.Errorf("Expected max_wait 2m, got %v", time.Duration(cfg.Retry.MaxWait))
				}
			},
		},
		{
			name:     "valid toml config",
			filename: "config.toml",
			content: `
default_backend = "github"

[backends.github]
base_url = "https://ghe.example.com/api/v3/"
token = "ghp_toml"

[retry]
max_retries = 0
base_delay = "1s"
`,
			description: "Should load TOML by extension",
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.DefaultBackend != "github" {
					t.Errorf("Expected default backend 'github', got '%s'", cfg.DefaultBackend)
				}
				if got := cfg.BaseURL("github"); got != "https://ghe.example.com/api/v3/" {
					t.Errorf("Expected github base URL, got '%s'", got)
				}
				if cfg.Retry.MaxRetries == nil || *cfg.Retry.MaxRetries != 0 {
					t.Errorf("Expected explicit max_retries 0, got %v", cfg.Retry.MaxRetries)
				}
				if time.Duration(cfg.Retry.BaseDelay) != time.Second {
					t.Errorf("Expected base_delay 1s, got %v", time.Duration(cfg.Retry.BaseDelay))
				}
			},
		},
		{
			name:        "empty config",
			filename:    "config.yaml",
			content:     "",
			description: "Empty file is a valid, empty configuration",
			validateFn: func(t *testing.T, cfg *Config) {
				if cfg.DefaultBackend != "" || len(cfg.Backends) != 0 {
					t.Errorf("Expected empty config, got %+v", cfg)
				}
				if _, err := cfg.Token("github"); !errors.Is(err, credentials.ErrCredentialNotFound) {
					t.Errorf("Expected ErrCredentialNotFound, got %v", err)
				}
			},
		},
		{
			name:        "unknown backend",
			filename:    "config.yaml",
			content:     "backends:\n  bitbucket:\n    token: x\n",
			wantErr:     true,
			description: "Unknown backend keys are rejected",
		},
		{
			name:        "unknown default backend",
			filename:    "config.yaml",
			content:     "default_backend: gitea\n",
			wantErr:     true,
			description: "Unknown default backend is rejected",
		},
		{
			name:        "insecure base url",
			filename:    "config.yaml",
			content:     "backends:\n  gitlab:\n    base_url: http://gitlab.local/api/v4/\n",
			wantErr:     true,
			description: "Base URLs must use https",
		},
		{
			name:        "bad duration",
			filename:    "config.yaml",
			content:     "retry:\n  base_delay: soon\n",
			wantErr:     true,
			description: "Durations must parse",
		},
		{
			name:        "negative retries",
			filename:    "config.yaml",
			content:     "retry:\n  max_retries: -2\n",
			wantErr:     true,
			description: "Negative retry counts are rejected",
		},
		{
			name:        "invalid yaml",
			filename:    "config.yaml",
			content:     "backends: [unterminated\n",
			wantErr:     true,
			description: "Should fail on malformed YAML",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("Failed to write temp config: %v", err)
			}

			cfg, err := LoadFromFile(path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("%s: LoadFromFile() error = %v, wantErr %v", tt.description, err, tt.wantErr)
			}
			if tt.validateFn != nil && err == nil {
				tt.validateFn(t, cfg)
			}
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("Expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected wrapped os.ErrNotExist, got %v", err)
	}
}

func TestParseUnsupportedFormat(t *testing.T) {
	if _, err := Parse([]byte("{}"), "json"); err == nil {
		t.Error("Expected error for unsupported format")
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	cfg := &Config{
		DefaultBackend: "svn",
		Backends: map[string]BackendConfig{
			"hg":     {},
			"gitlab": {BaseURL: "http://x"},
		},
	}
	cfg.ApplyDefaults()
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"svn", "hg", "backends.gitlab.base_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected error to mention %q, got %q", want, err.Error())
		}
	}
}

func TestNilConfig(t *testing.T) {
	var cfg *Config
	if _, err := cfg.Token("github"); !errors.Is(err, credentials.ErrCredentialNotFound) {
		t.Errorf("Expected ErrCredentialNotFound from nil config, got %v", err)
	}
	if cfg.BaseURL("github") != "" {
		t.Error("Expected empty base URL from nil config")
	}
}

func TestConfigAsCredentialStore(t *testing.T) {
	var _ credentials.Store = (*Config)(nil)

	cfg := &Config{Backends: map[string]BackendConfig{"gitlab": {Token: "glpat-cfgcfgcfgcfgcfgcfg"}}}
	r := &credentials.Resolver{
		Env:    func(string) (string, bool) { return "", false },
		Config: cfg,
	}
	res, err := r.Resolve(credentials.GitLab)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if res.Source != "config" || res.Token != "glpat-cfgcfgcfgcfgcfgcfg" {
		t.Errorf("Expected config token, got %+v", res)
	}
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	if !strings.HasSuffix(path, filepath.Join("forgeclient", "config.yaml")) {
		t.Errorf("Unexpected default path %q", path)
	}
}
