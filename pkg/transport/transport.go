// Package transport performs the outbound HTTP calls for every backend
// adapter. A Transport applies, in order:
//
//   - conditional-request caching keyed by the exact request URL (ETag /
//     If-None-Match, 304 answered from the cache),
//   - bounded retries with exponential backoff for network failures and
//     quota responses, honoring backend reset hints,
//   - rate-limit telemetry extracted from every response.
//
// Transport implements http.RoundTripper so SDK clients can send through
// it, and also offers Do/Get for callers that want a normalized Response.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/greg-hellings/forgeclient/pkg/forgeerr"
)

// CacheHeader is set to CacheHit on responses synthesized from the cache.
const (
	CacheHeader = "X-Forgeclient-Cache"
	CacheHit    = "HIT"
)

// DefaultUserAgent identifies forgeclient to the backends.
const DefaultUserAgent = "forgeclient/dev"

// Options configures a Transport.
type Options struct {
	// Base performs single attempts. Defaults to http.DefaultTransport.
	Base http.RoundTripper

	// Store holds cached responses. Defaults to a fresh MemoryStore, so
	// unrelated Transports never share cache state implicitly.
	Store Store

	// Policy controls retries. Zero fields fall back to DefaultPolicy values.
	Policy *Policy

	// UserAgent is sent on every request. Defaults to DefaultUserAgent.
	UserAgent string

	// Limiter, when set, is waited on before every attempt.
	Limiter *rate.Limiter

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Transport is safe for concurrent use. Its only mutable state is the
// cache Store and the latest rate limit snapshot.
type Transport struct {
	store     Store
	retry     *retryablehttp.Client
	policy    Policy
	userAgent string
	rateLimit *rateLimitTracker
	logger    *slog.Logger
}

// New creates a Transport from opts.
func New(opts Options) *Transport {
	base := opts.Base
	if base == nil {
		base = http.DefaultTransport
	}
	store := opts.Store
	if store == nil {
		store = NewMemoryStore()
	}
	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = opts.Policy.withDefaults()
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	t := &Transport{
		store:     store,
		policy:    policy,
		userAgent: userAgent,
		rateLimit: &rateLimitTracker{},
		logger:    logger,
	}

	attempts := &attemptTransport{base: base, limiter: opts.Limiter, rateLimit: t.rateLimit}
	client := &http.Client{
		Transport: attempts,
		// Redirects are returned to the SDKs unchanged.
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
	}
	t.retry = policy.newRetryClient(client, logger)
	return t
}

// Store returns the cache store.
func (t *Transport) Store() Store { return t.store }

// Policy returns the effective retry policy.
func (t *Transport) Policy() Policy { return t.policy }

// RateLimit returns the latest rate limit snapshot, if any response carried one.
func (t *Transport) RateLimit() (RateLimit, bool) { return t.rateLimit.snapshot() }

// Client returns an *http.Client sending through t.
func (t *Transport) Client() *http.Client {
	return &http.Client{Transport: t}
}

// RoundTrip implements http.RoundTripper. Non-2xx responses that are not
// retryable are returned as responses so SDK clients can parse their
// backend-specific error payloads; exhausted retries surface as
// *forgeerr.Error values of kind RateLimited or TransientNetwork.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)

	key := req.URL.String()
	cacheable := req.Method == http.MethodGet || req.Method == ""

	var cached Entry
	var haveCached bool
	if cacheable {
		cached, haveCached = t.store.Get(key)
		if haveCached && cached.ETag != "" {
			req.Header.Set("If-None-Match", cached.ETag)
		}
	}

	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare request: %w", err)
	}
	resp, err := t.retry.Do(rreq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotModified && haveCached && cached.Body != nil {
		drain(resp.Body)
		t.logger.Debug("Served response from cache", "url", key)
		return cachedResponse(req, resp, cached), nil
	}

	if cacheable && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, forgeerr.TransientNetwork(fmt.Errorf("reading response body: %w", err))
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if len(body) > 0 {
			entry := Entry{
				URL:       key,
				ETag:      resp.Header.Get("ETag"),
				Body:      body,
				UpdatedAt: t.policy.Now().UTC(),
			}
			if err := t.store.Put(entry); err != nil {
				t.logger.Warn("Failed to update response cache", "url", key, "error", err)
			}
		}
	}

	return resp, nil
}

// Request is the input of Do.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
}

// Response is the normalized result of Do.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	CacheHit   bool
	RateLimit  *RateLimit
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Do performs one logical request. Responses with status >= 400 are
// returned together with a *forgeerr.Error.
func (t *Transport) Do(ctx context.Context, r Request) (*Response, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range r.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}

	resp, err := t.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, forgeerr.TransientNetwork(fmt.Errorf("reading response body: %w", err))
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		CacheHit:   resp.Header.Get(CacheHeader) == CacheHit,
	}
	if rl, ok := ParseRateLimit(resp.Header); ok {
		out.RateLimit = &rl
	}
	if resp.StatusCode >= 400 {
		return out, forgeerr.FromStatus(resp.StatusCode, http.StatusText(resp.StatusCode), data)
	}
	return out, nil
}

// Get is Do for a GET request.
func (t *Transport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return t.Do(ctx, Request{Method: http.MethodGet, URL: url, Header: header})
}

// attemptTransport performs one attempt: it waits on the optional limiter
// and records rate limit headers from whatever comes back.
type attemptTransport struct {
	base      http.RoundTripper
	limiter   *rate.Limiter
	rateLimit *rateLimitTracker
}

func (a *attemptTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	resp, err := a.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	a.rateLimit.update(resp.Header)
	return resp, nil
}

func cachedResponse(req *http.Request, notModified *http.Response, entry Entry) *http.Response {
	header := notModified.Header.Clone()
	header.Set(CacheHeader, CacheHit)
	header.Set("Content-Length", strconv.Itoa(len(entry.Body)))
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "application/json")
	}
	if entry.ETag != "" && header.Get("ETag") == "" {
		header.Set("ETag", entry.ETag)
	}
	return &http.Response{
		Status:        "200 OK",
		StatusCode:    http.StatusOK,
		Proto:         notModified.Proto,
		ProtoMajor:    notModified.ProtoMajor,
		ProtoMinor:    notModified.ProtoMinor,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}
}

func drain(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(body, 4096))
	_ = body.Close()
}
