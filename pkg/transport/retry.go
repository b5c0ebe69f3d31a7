package transport

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

// Default resilience settings.
const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
	DefaultMaxWait    = 60 * time.Second
)

// Policy configures retry and rate-limit handling. The zero value is not
// usable; start from DefaultPolicy.
type Policy struct {
	// MaxRetries is the number of attempts allowed after the first.
	MaxRetries int

	// BaseDelay is the exponential backoff unit: attempt i waits
	// BaseDelay * 2^i before retrying.
	BaseDelay time.Duration

	// MaxWait caps any single wait, including waits derived from a
	// backend reset hint.
	MaxWait time.Duration

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultPolicy returns 3 retries with 500ms exponential backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: DefaultMaxRetries,
		BaseDelay:  DefaultBaseDelay,
		MaxWait:    DefaultMaxWait,
		Now:        time.Now,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxWait <= 0 {
		p.MaxWait = DefaultMaxWait
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return p
}

// quotaLimited reports whether resp signals quota exhaustion: HTTP 429, or
// a 403 whose rate limit headers say nothing is left or that carries a
// Retry-After hint.
func quotaLimited(resp *http.Response) bool {
	if resp == nil {
		return false
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return exhausted(resp.Header) || resp.Header.Get("Retry-After") != ""
	}
	return false
}

// checkRetry decides whether an attempt is retried. Network failures and
// quota responses are retried; every other status, including all other
// 4xx, is returned to the caller after a single attempt.
func (p Policy) checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return false, ctxErr
	}
	if err != nil {
		return true, nil
	}
	return quotaLimited(resp), nil
}

// backoff computes the wait before retry number attempt (0-based).
func (p Policy) backoff(_, _ time.Duration, attempt int, resp *http.Response) time.Duration {
	if quotaLimited(resp) {
		now := p.Now()
		if reset, ok := resetHint(resp.Header, now); ok {
			wait := reset.Sub(now)
			if wait < 0 {
				wait = 0
			}
			return min(wait, p.MaxWait)
		}
	}
	return p.exponential(attempt)
}

func (p Policy) exponential(attempt int) time.Duration {
	factor := math.Pow(2, float64(attempt))
	wait := time.Duration(float64(p.BaseDelay) * factor)
	if wait <= 0 || wait > p.MaxWait {
		return p.MaxWait
	}
	return wait
}

// errorHandler runs once retries stop without a plain success. It turns
// the final state into a taxonomy error, or returns the response untouched
// when it is not a retryable failure.
func (p Policy) errorHandler(resp *http.Response, err error, _ int) (*http.Response, error) {
	if err != nil {
		if resp != nil {
			_ = resp.Body.Close()
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, forgeerr.TransientNetwork(err)
	}
	if quotaLimited(resp) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, forgeerr.MaxBodyLen+1))
		_ = resp.Body.Close()
		reset, _ := resetHint(resp.Header, p.Now())
		return nil, forgeerr.RateLimited(resp.StatusCode, reset, body)
	}
	return resp, nil
}

// newRetryClient builds the retryablehttp engine for p around client.
func (p Policy) newRetryClient(client *http.Client, logger retryablehttp.LeveledLogger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = client
	rc.Logger = logger
	rc.RetryMax = p.MaxRetries
	rc.RetryWaitMin = p.BaseDelay
	rc.RetryWaitMax = p.MaxWait
	rc.CheckRetry = p.checkRetry
	rc.Backoff = p.backoff
	rc.ErrorHandler = p.errorHandler
	return rc
}
