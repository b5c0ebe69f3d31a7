package forge

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/greg-hellings/forgeclient/pkg/transport"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPolicy() *transport.Policy {
	return &transport.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxWait: 10 * time.Millisecond}
}

func newTestTransport(srv *httptest.Server) *transport.Transport {
	return transport.New(transport.Options{
		Base:   srv.Client().Transport,
		Policy: fastPolicy(),
		Logger: discardLogger(),
	})
}

func newTestGitHub(t *testing.T, handler http.Handler) *GitHubAdapter {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewGitHubAdapter(AdapterOptions{
		Token:     "ghp_testtokentesttokentesttoken",
		BaseURL:   srv.URL + "/",
		Transport: newTestTransport(srv),
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	return a
}

func newTestGitLab(t *testing.T, handler http.Handler) *GitLabAdapter {
	t.Helper()
	srv := httptest.NewTLSServer(handler)
	t.Cleanup(srv.Close)

	a, err := NewGitLabAdapter(AdapterOptions{
		Token:     "glpat-testtokentesttoken",
		BaseURL:   srv.URL + "/api/v4/",
		Transport: newTestTransport(srv),
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	return a
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}
