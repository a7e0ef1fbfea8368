package ratelimit

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxKeys bounds the number of callers a FixedWindow tracks at once.
const DefaultMaxKeys = 100_000

// window is the per-caller record: requests counted in the current window
// and the instant the window ends.
type window struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
}

// FixedWindow admits at most limit requests per key per window. A window
// starts at the key's first request and is replaced lazily by the first
// request after it ends.
//
// KEY CONCEPTS:
//
//	entries  LRU of key → *window, guarded by its own lock
//	window   one caller's count and reset instant, guarded by window.mu
//
// Lookup goes through the LRU; the read-modify-write happens under the
// entry's mutex, so unrelated callers do not contend. PeekOrAdd settles the
// race where two first requests for a key arrive together: both end up on
// the same *window. When the map is full the least recently seen caller is
// forgotten, which at worst grants that caller a fresh window.
type FixedWindow struct {
	limit   int
	period  time.Duration
	maxKeys int
	now     func() time.Time
	entries *lru.Cache[string, *window]
}

// WindowOption configures a FixedWindow.
type WindowOption func(*FixedWindow)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) WindowOption {
	return func(w *FixedWindow) { w.now = now }
}

// WithMaxKeys bounds the tracked key count. Values below 1 are ignored.
func WithMaxKeys(n int) WindowOption {
	return func(w *FixedWindow) {
		if n > 0 {
			w.maxKeys = n
		}
	}
}

// NewFixedWindow creates a limiter admitting limit requests per period.
func NewFixedWindow(limit int, period time.Duration, opts ...WindowOption) *FixedWindow {
	w := &FixedWindow{
		limit:   limit,
		period:  period,
		maxKeys: DefaultMaxKeys,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	// lru.New only fails for a non-positive size, which WithMaxKeys prevents.
	w.entries, _ = lru.New[string, *window](w.maxKeys)
	return w
}

// Allow implements Limiter. It never returns an error.
func (w *FixedWindow) Allow(_ context.Context, key string) (bool, error) {
	now := w.now()

	e, ok := w.entries.Get(key)
	if !ok {
		fresh := &window{}
		if prev, found, _ := w.entries.PeekOrAdd(key, fresh); found {
			e = prev
		} else {
			e = fresh
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.resetAt.IsZero() || now.After(e.resetAt) {
		e.count = 1
		e.resetAt = now.Add(w.period)
		return true, nil
	}
	if e.count >= w.limit {
		return false, nil
	}
	e.count++
	return true, nil
}

// Len returns the number of tracked keys.
func (w *FixedWindow) Len() int { return w.entries.Len() }

// Sweep drops every key whose window has ended. It returns how many were
// removed. Expired entries behave like absent ones, so sweeping only frees
// memory.
func (w *FixedWindow) Sweep() int {
	now := w.now()
	removed := 0
	for _, key := range w.entries.Keys() {
		e, ok := w.entries.Peek(key)
		if !ok {
			continue
		}
		e.mu.Lock()
		expired := now.After(e.resetAt)
		e.mu.Unlock()
		if expired && w.entries.Remove(key) {
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps every interval until ctx is cancelled. It blocks, so
// run it in its own goroutine.
func (w *FixedWindow) StartJanitor(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			w.Sweep()
		}
	}
}
