package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle keeps one token bucket per client and forgets clients that have
// been idle for longer than the idle TTL. It guards the public read endpoints.
type Throttle struct {
	mu      sync.Mutex
	entries map[string]*bucket
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// ThrottleOption configures a Throttle.
type ThrottleOption func(*Throttle)

// WithIdleTTL sets how long an unused bucket is kept. Default 15 minutes.
func WithIdleTTL(d time.Duration) ThrottleOption {
	return func(t *Throttle) { t.idleTTL = d }
}

// WithThrottleClock replaces time.Now.
func WithThrottleClock(now func() time.Time) ThrottleOption {
	return func(t *Throttle) { t.now = now }
}

// NewThrottle creates a throttle refilling rps tokens per second up to burst.
func NewThrottle(rps float64, burst int, opts ...ThrottleOption) *Throttle {
	t := &Throttle{
		entries: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Allow takes a token from key's bucket.
func (t *Throttle) Allow(key string) bool {
	now := t.now()

	t.mu.Lock()
	b, ok := t.entries[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(t.rps, t.burst)}
		t.entries[key] = b
	}
	b.lastSeen = now
	t.mu.Unlock()

	return b.lim.AllowN(now, 1)
}

// Cleanup drops buckets idle for longer than the idle TTL.
func (t *Throttle) Cleanup() int {
	cutoff := t.now().Add(-t.idleTTL)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for k, b := range t.entries {
		if b.lastSeen.Before(cutoff) {
			delete(t.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked clients.
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// StartJanitor runs Cleanup every interval until ctx is cancelled. It blocks.
func (t *Throttle) StartJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			t.Cleanup()
		}
	}
}

// Middleware rejects requests over the client's budget with 429 and the
// usual {"error": ...} body.
func (t *Throttle) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !t.Allow(ClientAddr(r)) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Too many requests"})
			return
		}
		next.ServeHTTP(w, r)
	})
}
