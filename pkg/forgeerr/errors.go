// Package forgeerr defines the error taxonomy shared by the transport layer
// and the backend adapters. Every failure surfaced by forgeclient is an
// *Error whose Kind callers can match with errors.Is against the exported
// sentinels, or with KindOf.
package forgeerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxBodyLen bounds how much of a response body is kept for diagnostics.
const MaxBodyLen = 512

// Kind classifies an error.
type Kind int

const (
	// KindUnknown is never produced by forgeclient; it is the zero value.
	KindUnknown Kind = iota
	// KindNoCredential means no usable token was resolved for the backend.
	KindNoCredential
	// KindUnsupportedIdentifier means an identifier of the wrong shape was passed to an adapter.
	KindUnsupportedIdentifier
	// KindUnsupportedOperation means the backend cannot perform the requested operation.
	KindUnsupportedOperation
	// KindUnauthorized means the backend rejected the token.
	KindUnauthorized
	// KindRateLimited means the backend signaled quota exhaustion and retries ran out.
	KindRateLimited
	// KindTransientNetwork means connection or timeout failures outlasted the retry budget.
	KindTransientNetwork
	// KindBackendAPI covers every other non-2xx response.
	KindBackendAPI
	// KindConversion means a response could not be mapped into the unified model.
	KindConversion
	// KindBackendUndetected means no detection signal selected a backend.
	KindBackendUndetected
)

var kindNames = map[Kind]string{
	KindUnknown:               "unknown",
	KindNoCredential:          "no credential",
	KindUnsupportedIdentifier: "unsupported identifier",
	KindUnsupportedOperation:  "unsupported operation",
	KindUnauthorized:          "unauthorized",
	KindRateLimited:           "rate limited",
	KindTransientNetwork:      "transient network error",
	KindBackendAPI:            "backend API error",
	KindConversion:            "conversion error",
	KindBackendUndetected:     "backend undetected",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrNoCredential          = &Error{Kind: KindNoCredential}
	ErrUnsupportedIdentifier = &Error{Kind: KindUnsupportedIdentifier}
	ErrUnsupportedOperation  = &Error{Kind: KindUnsupportedOperation}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrTransientNetwork      = &Error{Kind: KindTransientNetwork}
	ErrBackendAPI            = &Error{Kind: KindBackendAPI}
	ErrConversion            = &Error{Kind: KindConversion}
	ErrBackendUndetected     = &Error{Kind: KindBackendUndetected}
)

// Error is the single concrete error type of the taxonomy. Only the fields
// relevant to a Kind are populated.
type Error struct {
	Kind Kind

	// Backend is the backend name ("github", "gitlab"), empty for
	// transport-level failures that are not bound to a backend.
	Backend string

	// Op names the adapter operation, e.g. "GetRepository".
	Op string

	// Message is a human readable description.
	Message string

	// StatusCode is the HTTP status for Unauthorized, RateLimited and
	// BackendAPI errors.
	StatusCode int

	// Body holds the response body truncated to MaxBodyLen bytes.
	Body string

	// ResetAt is the rate-limit reset time when the backend supplied one.
	ResetAt time.Time

	// Entity is the unified entity type a conversion failed for.
	Entity string

	// Checked lists the environment variables and config keys consulted
	// while resolving a credential.
	Checked []string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Backend != "" {
		b.WriteString(e.Backend)
		b.WriteString(": ")
	}
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())

	switch e.Kind {
	case KindNoCredential:
		if len(e.Checked) > 0 {
			fmt.Fprintf(&b, " (set one of: %s)", strings.Join(e.Checked, ", "))
		}
	case KindConversion:
		if e.Entity != "" {
			fmt.Fprintf(&b, " for %s", e.Entity)
		}
	case KindRateLimited:
		if !e.ResetAt.IsZero() {
			fmt.Fprintf(&b, " until %s", e.ResetAt.UTC().Format(time.RFC3339))
		}
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// StatusCode returns the HTTP status attached to err, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	return KindOf(err) == KindBackendAPI && StatusCode(err) == http.StatusNotFound
}

// IsRateLimited reports whether err is a rate limit failure.
func IsRateLimited(err error) bool { return KindOf(err) == KindRateLimited }

// IsRetryable reports whether the transport would have retried err.
func IsRetryable(err error) bool {
	k := KindOf(err)
	return k == KindRateLimited || k == KindTransientNetwork
}

// NoCredential builds a KindNoCredential error naming what was checked.
func NoCredential(backend string, checked ...string) *Error {
	return &Error{Kind: KindNoCredential, Backend: backend, Checked: checked}
}

// UnsupportedIdentifier builds a KindUnsupportedIdentifier error.
func UnsupportedIdentifier(backend, op, message string) *Error {
	return &Error{Kind: KindUnsupportedIdentifier, Backend: backend, Op: op, Message: message}
}

// UnsupportedOperation builds a KindUnsupportedOperation error.
func UnsupportedOperation(backend, op, message string) *Error {
	return &Error{Kind: KindUnsupportedOperation, Backend: backend, Op: op, Message: message}
}

// Conversion builds a KindConversion error.
func Conversion(backend, entity string, cause error) *Error {
	return &Error{Kind: KindConversion, Backend: backend, Entity: entity, Err: cause}
}

// BackendUndetected builds a KindBackendUndetected error.
func BackendUndetected(message string) *Error {
	return &Error{Kind: KindBackendUndetected, Message: message}
}

// TransientNetwork wraps a connection-level failure.
func TransientNetwork(cause error) *Error {
	return &Error{Kind: KindTransientNetwork, Err: cause}
}

// RateLimited builds a KindRateLimited error. resetAt may be zero.
func RateLimited(status int, resetAt time.Time, body []byte) *Error {
	return &Error{Kind: KindRateLimited, StatusCode: status, ResetAt: resetAt, Body: TruncateBody(body)}
}

// FromStatus classifies a non-2xx, non-retryable response: 401 becomes
// Unauthorized, everything else BackendAPI.
func FromStatus(status int, message string, body []byte) *Error {
	kind := KindBackendAPI
	if status == http.StatusUnauthorized {
		kind = KindUnauthorized
	}
	return &Error{Kind: kind, StatusCode: status, Message: message, Body: TruncateBody(body)}
}

// WithContext returns a copy of err (when it is an *Error) annotated with
// backend and op. Fields already set are kept. Other errors are returned as is.
func WithContext(err error, backend, op string) error {
	var fe *Error
	if !errors.As(err, &fe) {
		return err
	}
	annotated := *fe
	if annotated.Backend == "" {
		annotated.Backend = backend
	}
	if annotated.Op == "" {
		annotated.Op = op
	}
	return &annotated
}

// TruncateBody returns body as a string of at most MaxBodyLen bytes,
// cut on a rune boundary.
func TruncateBody(body []byte) string {
	if len(body) <= MaxBodyLen {
		return string(body)
	}
	cut := MaxBodyLen
	for cut > 0 && !utf8.RuneStart(body[cut]) {
		cut--
	}
	return string(body[:cut]) + "..."
}
