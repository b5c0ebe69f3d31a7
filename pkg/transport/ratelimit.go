package transport

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimit is the quota snapshot a backend reported on its latest response.
// GitHub sends X-RateLimit-{Limit,Remaining,Reset,Used,Resource}; GitLab
// sends RateLimit-{Limit,Remaining,Reset,Observed}.
type RateLimit struct {
	Limit     int
	Remaining int
	Used      int
	Reset     time.Time
	Resource  string
}

// headerInt returns the first parseable integer among the named headers.
func headerInt(header http.Header, names ...string) (int, bool) {
	for _, name := range names {
		raw := strings.TrimSpace(header.Get(name))
		if raw == "" {
			continue
		}
		if v, err := strconv.Atoi(raw); err == nil {
			return v, true
		}
	}
	return 0, false
}

// ParseRateLimit extracts rate limit counters from response headers. The
// second return is false when the backend sent none of them.
func ParseRateLimit(header http.Header) (RateLimit, bool) {
	var rl RateLimit
	found := false

	if v, ok := headerInt(header, "X-RateLimit-Limit", "RateLimit-Limit"); ok {
		rl.Limit = v
		found = true
	}
	if v, ok := headerInt(header, "X-RateLimit-Remaining", "RateLimit-Remaining"); ok {
		rl.Remaining = v
		found = true
	}
	if v, ok := headerInt(header, "X-RateLimit-Used", "RateLimit-Observed"); ok {
		rl.Used = v
		found = true
	}
	if v, ok := headerInt(header, "X-RateLimit-Reset", "RateLimit-Reset"); ok {
		rl.Reset = time.Unix(int64(v), 0)
		found = true
	}
	rl.Resource = header.Get("X-RateLimit-Resource")

	if found && rl.Used == 0 && rl.Limit > 0 && rl.Remaining <= rl.Limit {
		rl.Used = rl.Limit - rl.Remaining
	}
	return rl, found
}

// exhausted reports whether headers say the quota is used up.
func exhausted(header http.Header) bool {
	v, ok := headerInt(header, "X-RateLimit-Remaining", "RateLimit-Remaining")
	return ok && v == 0
}

// resetHint returns when the backend says a rate limited request may be
// retried. Retry-After (seconds) wins over the reset timestamp headers.
func resetHint(header http.Header, now time.Time) (time.Time, bool) {
	if header == nil {
		return time.Time{}, false
	}
	if v, ok := headerInt(header, "Retry-After"); ok && v >= 0 {
		return now.Add(time.Duration(v) * time.Second), true
	}
	if v, ok := headerInt(header, "X-RateLimit-Reset", "RateLimit-Reset"); ok {
		return time.Unix(int64(v), 0), true
	}
	return time.Time{}, false
}

// rateLimitTracker remembers the most recent snapshot.
type rateLimitTracker struct {
	mu    sync.RWMutex
	last  RateLimit
	known bool
}

func (tracker *rateLimitTracker) update(header http.Header) {
	rl, ok := ParseRateLimit(header)
	if !ok {
		return
	}
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	tracker.last = rl
	tracker.known = true
}

func (tracker *rateLimitTracker) snapshot() (RateLimit, bool) {
	tracker.mu.RLock()
	defer tracker.mu.RUnlock()
	return tracker.last, tracker.known
}
