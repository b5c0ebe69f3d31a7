package forgeerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestErrorIsMatchesKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		want     bool
	}{
		{"no credential", NoCredential("github", "GITHUB_TOKEN"), ErrNoCredential, true},
		{"rate limited", RateLimited(429, time.Time{}, nil), ErrRateLimited, true},
		{"wrapped transient", fmt.Errorf("outer: %w", TransientNetwork(errors.New("reset"))), ErrTransientNetwork, true},
		{"wrong kind", Conversion("gitlab", "Issue", errors.New("x")), ErrBackendAPI, false},
		{"unauthorized from status", FromStatus(401, "bad token", nil), ErrUnauthorized, true},
		{"backend from status", FromStatus(404, "Not Found", nil), ErrBackendAPI, true},
		{"backend undetected", BackendUndetected("pass --backend"), ErrBackendUndetected, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.sentinel); got != tt.want {
				t.Errorf("errors.Is() = %v, expected %v", got, tt.want)
			}
		})
	}
}

func TestKindOfAndPredicates(t *testing.T) {
	notFound := fmt.Errorf("get: %w", FromStatus(404, "Not Found", []byte(`{"message":"Not Found"}`)))

	if KindOf(notFound) != KindBackendAPI {
		t.Errorf("Expected KindBackendAPI, got %v", KindOf(notFound))
	}
	if !IsNotFound(notFound) {
		t.Error("Expected IsNotFound to be true")
	}
	if StatusCode(notFound) != 404 {
		t.Errorf("Expected status 404, got %d", StatusCode(notFound))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("Expected plain errors to have KindUnknown")
	}
	if !IsRetryable(TransientNetwork(errors.New("timeout"))) {
		t.Error("Expected transient network errors to be retryable")
	}
	if IsRetryable(notFound) {
		t.Error("Expected 404 not to be retryable")
	}
}

func TestErrorMessage(t *testing.T) {
	err := NoCredential("gitlab", "GITLAB_TOKEN", "GITLAB_PRIVATE_TOKEN", "config:backends.gitlab.token")
	msg := err.Error()
	for _, want := range []string{"gitlab", "no credential", "GITLAB_TOKEN", "GITLAB_PRIVATE_TOKEN"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Expected %q in %q", want, msg)
		}
	}

	reset := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rl := RateLimited(429, reset, nil)
	if !strings.Contains(rl.Error(), "2026-01-02T03:04:05Z") {
		t.Errorf("Expected reset time in %q", rl.Error())
	}
}

func TestWithContext(t *testing.T) {
	base := FromStatus(500, "boom", nil)
	annotated := WithContext(fmt.Errorf("wrapped: %w", base), "github", "GetIssue")

	var fe *Error
	if !errors.As(annotated, &fe) {
		t.Fatal("Expected *Error")
	}
	if fe.Backend != "github" || fe.Op != "GetIssue" {
		t.Errorf("Expected github/GetIssue, got %s/%s", fe.Backend, fe.Op)
	}
	if base.Backend != "" {
		t.Error("WithContext must not mutate the original error")
	}

	plain := errors.New("plain")
	if WithContext(plain, "github", "x") != plain {
		t.Error("Expected non-taxonomy errors to pass through")
	}
}

func TestTruncateBody(t *testing.T) {
	short := []byte("short")
	if TruncateBody(short) != "short" {
		t.Errorf("Expected short body unchanged")
	}

	long := []byte(strings.Repeat("é", MaxBodyLen))
	got := TruncateBody(long)
	if !strings.HasSuffix(got, "...") {
		t.Errorf("Expected truncated body to end with ellipsis")
	}
	if len(got) > MaxBodyLen+3 {
		t.Errorf("Expected at most %d bytes, got %d", MaxBodyLen+3, len(got))
	}
	if !strings.HasPrefix(got, "é") {
		t.Error("Expected truncation on a rune boundary")
	}
}
