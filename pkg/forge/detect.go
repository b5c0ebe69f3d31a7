package forge

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

// ErrBackendUndetected matches the error returned when no detection signal
// names a backend and no fallback is configured. It is the
// forgeerr.KindBackendUndetected sentinel.
var ErrBackendUndetected = forgeerr.ErrBackendUndetected

// Remote is a parsed git remote.
type Remote struct {
	Host     string
	FullName string
}

// ParseRemoteURL parses https://host/owner/name(.git),
// ssh://git@host[:port]/owner/name(.git) and scp-like
// git@host:owner/name(.git) remotes.
func ParseRemoteURL(remote string) (Remote, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return Remote{}, errors.New("forge: empty remote URL")
	}

	var host, path string
	if !strings.Contains(remote, "://") {
		// scp-like syntax: [user@]host:path
		colon := strings.Index(remote, ":")
		if colon <= 0 {
			return Remote{}, fmt.Errorf("forge: unrecognized remote URL %q", remote)
		}
		host = remote[:colon]
		if at := strings.LastIndex(host, "@"); at >= 0 {
			host = host[at+1:]
		}
		path = remote[colon+1:]
	} else {
		u, err := url.Parse(remote)
		if err != nil {
			return Remote{}, fmt.Errorf("forge: invalid remote URL %q: %w", remote, err)
		}
		host = u.Hostname()
		path = u.Path
	}

	path = strings.TrimSuffix(strings.Trim(path, "/"), ".git")
	if host == "" || !strings.Contains(path, "/") {
		return Remote{}, fmt.Errorf("forge: remote URL %q has no owner/name path", remote)
	}
	return Remote{Host: strings.ToLower(host), FullName: path}, nil
}

// hostBackend matches a host against the known backend domains.
func hostBackend(host string) (Backend, bool) {
	host = strings.ToLower(host)
	switch {
	case strings.Contains(host, "github"):
		return BackendGitHub, true
	case strings.Contains(host, "gitlab"):
		return BackendGitLab, true
	}
	return "", false
}

// DetectInput carries the signals DetectBackend consults.
type DetectInput struct {
	// Explicit is a caller override.
	Explicit Backend
	// ConfigDefault is the loaded default_backend value.
	ConfigDefault Backend
	// RemoteURL is the repository remote, if known.
	RemoteURL string
	// Hosts maps self-hosted API hosts (from configured base URLs) to
	// their backend, matched before the domain patterns.
	Hosts map[string]Backend
	// HasCredential reports whether the environment holds a token for a backend.
	HasCredential func(Backend) bool
	// Fallback is used only when every other signal is inconclusive.
	Fallback Backend
}

// DetectBackend picks the backend by, in order: explicit override,
// configured default, remote URL host, environment credential presence,
// fallback. The returned string names the deciding signal.
func DetectBackend(in DetectInput) (Backend, string, error) {
	if in.Explicit != "" {
		if !in.Explicit.Valid() {
			return "", "", fmt.Errorf("forge: unknown backend %q", in.Explicit)
		}
		return in.Explicit, "explicit", nil
	}
	if in.ConfigDefault != "" {
		if !in.ConfigDefault.Valid() {
			return "", "", fmt.Errorf("forge: unknown default backend %q", in.ConfigDefault)
		}
		return in.ConfigDefault, "config", nil
	}
	if in.RemoteURL != "" {
		if r, err := ParseRemoteURL(in.RemoteURL); err == nil {
			if b, ok := in.Hosts[r.Host]; ok {
				return b, "remote", nil
			}
			if b, ok := hostBackend(r.Host); ok {
				return b, "remote", nil
			}
		}
	}
	if in.HasCredential != nil {
		for _, b := range Backends {
			if in.HasCredential(b) {
				return b, "environment", nil
			}
		}
	}
	if in.Fallback != "" {
		if !in.Fallback.Valid() {
			return "", "", fmt.Errorf("forge: unknown fallback backend %q", in.Fallback)
		}
		return in.Fallback, "fallback", nil
	}
	return "", "", forgeerr.BackendUndetected("pass an explicit backend, set default_backend in the config, or configure a fallback")
}
