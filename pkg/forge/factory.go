package forge

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/greg-hellings/forgeclient/pkg/config"
	"github.com/greg-hellings/forgeclient/pkg/credentials"
	"github.com/greg-hellings/forgeclient/pkg/transport"
)

// Options are the per-call inputs of Factory.Create. All fields are optional.
type Options struct {
	// Backend overrides detection.
	Backend Backend
	// Token overrides credential resolution.
	Token string
	// BaseURL overrides the environment, config and default base URL.
	BaseURL string
	// RemoteURL is the repository's git remote, used for detection.
	RemoteURL string
}

// Factory builds adapters. It is safe for concurrent use once configured.
type Factory struct {
	// Config is the loaded configuration, may be nil.
	Config *config.Config

	// Resolver finds tokens. Defaults to credentials.NewResolver(Config).
	Resolver *credentials.Resolver

	// Store is the response cache handed to every Transport this factory
	// builds. When nil, Config.Cache.Path selects a FileStore shared by
	// this factory's adapters, otherwise each adapter gets its own MemoryStore.
	Store transport.Store

	// BaseTransport performs single HTTP attempts. Defaults to http.DefaultTransport.
	BaseTransport http.RoundTripper

	// Policy overrides the retry policy derived from Config.
	Policy *transport.Policy

	// Limiter optionally throttles every request proactively.
	Limiter *rate.Limiter

	// UserAgent defaults to transport.DefaultUserAgent.
	UserAgent string

	// Fallback is used when detection is inconclusive. Empty means fail
	// with ErrBackendUndetected.
	Fallback Backend

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	resolverOnce sync.Once
	storeOnce    sync.Once
	fileStore    transport.Store
}

// NewFactory returns a Factory reading cfg (may be nil) and the process environment.
func NewFactory(cfg *config.Config, logger *slog.Logger) *Factory {
	return &Factory{Config: cfg, Logger: logger}
}

func (f *Factory) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.Default()
	}
	return f.Logger
}

func (f *Factory) resolver() *credentials.Resolver {
	f.resolverOnce.Do(func() {
		if f.Resolver != nil {
			return
		}
		var store credentials.Store
		if f.Config != nil {
			store = f.Config
		}
		f.Resolver = credentials.NewResolver(store)
		f.Resolver.Logger = f.logger()
	})
	return f.Resolver
}

// Detect resolves the backend for opts and names the deciding signal.
func (f *Factory) Detect(opts Options) (Backend, string, error) {
	r := f.resolver()
	in := DetectInput{
		Explicit:  opts.Backend,
		RemoteURL: opts.RemoteURL,
		Hosts:     map[string]Backend{},
		HasCredential: func(b Backend) bool {
			for _, name := range credentials.EnvVars(string(b)) {
				if r.Lookup(name) != "" {
					return true
				}
			}
			return false
		},
		Fallback: f.Fallback,
	}
	if f.Config != nil {
		in.ConfigDefault = Backend(f.Config.DefaultBackend)
	}
	for _, b := range Backends {
		for _, raw := range []string{r.Lookup(credentials.BaseURLEnvVar(string(b))), f.Config.BaseURL(string(b))} {
			if u, err := url.Parse(raw); err == nil && u.Host != "" {
				in.Hosts[strings.ToLower(u.Hostname())] = b
			}
		}
	}
	return DetectBackend(in)
}

// BaseURL resolves the REST root for backend: explicit override, then
// the environment override, then the config, then the public default.
func (f *Factory) BaseURL(backend Backend, explicit string) (string, error) {
	candidates := []struct {
		source, value string
	}{
		{"explicit", explicit},
		{credentials.BaseURLEnvVar(string(backend)), f.resolver().Lookup(credentials.BaseURLEnvVar(string(backend)))},
		{"config", f.Config.BaseURL(string(backend))},
	}
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		if !strings.HasPrefix(strings.ToLower(c.value), "https://") {
			return "", fmt.Errorf("forge: %s base URL %q from %s must use https", backend, c.value, c.source)
		}
		return c.value, nil
	}
	switch backend {
	case BackendGitHub:
		return DefaultGitHubBaseURL, nil
	case BackendGitLab:
		return DefaultGitLabBaseURL, nil
	}
	return "", fmt.Errorf("forge: unknown backend %q", backend)
}

// Create detects the backend, resolves the token and base URL and returns
// an adapter bound to a new Transport.
func (f *Factory) Create(opts Options) (Adapter, error) {
	backend, signal, err := f.Detect(opts)
	if err != nil {
		return nil, err
	}
	log := f.logger().With("backend", backend)
	log.Debug("Detected backend", "signal", signal)

	token, source := strings.TrimSpace(opts.Token), "explicit"
	if token == "" {
		res, err := f.resolver().Resolve(string(backend))
		if err != nil {
			return nil, err
		}
		token, source = res.Token, res.Source
	} else if err := credentials.Validate(string(backend), token); err != nil {
		log.Warn("Token format looks unusual", "source", source, "token", credentials.RedactToken(token), "reason", err.Error())
	}

	baseURL, err := f.BaseURL(backend, opts.BaseURL)
	if err != nil {
		return nil, err
	}

	adapterOpts := AdapterOptions{
		Token:     token,
		BaseURL:   baseURL,
		Transport: f.transport(),
		Logger:    f.logger(),
	}

	var adapter Adapter
	switch backend {
	case BackendGitHub:
		adapter, err = NewGitHubAdapter(adapterOpts)
	case BackendGitLab:
		adapter, err = NewGitLabAdapter(adapterOpts)
	default:
		err = fmt.Errorf("forge: unknown backend %q", backend)
	}
	if err != nil {
		return nil, err
	}

	log.Info("Created adapter", "base_url", baseURL, "token_source", source, "token", credentials.RedactToken(token))
	return adapter, nil
}

func (f *Factory) store() transport.Store {
	if f.Store != nil {
		return f.Store
	}
	if f.Config != nil && f.Config.Cache.Disabled {
		return disabledStore{}
	}
	if f.Config != nil && f.Config.Cache.Path != "" {
		f.storeOnce.Do(func() {
			f.fileStore = transport.NewFileStore(f.Config.Cache.Path, f.logger())
		})
		return f.fileStore
	}
	return transport.NewMemoryStore()
}

func (f *Factory) policy() *transport.Policy {
	if f.Policy != nil {
		return f.Policy
	}
	p := transport.DefaultPolicy()
	if f.Config != nil {
		rc := f.Config.Retry
		if rc.MaxRetries != nil {
			p.MaxRetries = *rc.MaxRetries
		}
		if rc.BaseDelay > 0 {
			p.BaseDelay = rc.BaseDelay.Duration()
		}
		if rc.MaxWait > 0 {
			p.MaxWait = rc.MaxWait.Duration()
		}
	}
	return &p
}

func (f *Factory) transport() *transport.Transport {
	return transport.New(transport.Options{
		Base:      f.BaseTransport,
		Store:     f.store(),
		Policy:    f.policy(),
		UserAgent: f.UserAgent,
		Limiter:   f.Limiter,
		Logger:    f.logger(),
	})
}

// disabledStore never holds anything, turning conditional requests off.
type disabledStore struct{}

func (disabledStore) Get(string) (transport.Entry, bool) { return transport.Entry{}, false }
func (disabledStore) Put(transport.Entry) error           { return nil }
func (disabledStore) Delete(string) error                 { return nil }
func (disabledStore) Clear() error                        { return nil }
