// Package ratelimit holds the admission limiters used by the submission path
// and the token-bucket throttle used on the read endpoints.
//
// Every limiter is an owned value constructed by the caller. Nothing in this
// package is process-global, so tests can build a limiter with a fake clock
// and throw it away afterwards.
package ratelimit

import (
	"context"
	"net/http"
	"strings"
)

// UnknownClient is the identity used when a request carries no client address
// headers. All such callers share one budget.
const UnknownClient = "unknown"

// Limiter decides whether the caller identified by key may proceed.
//
// Allow counts the request when it admits it. An error means the limiter's
// backing store could not be reached; the caller decides whether to fail
// open or closed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// chain consults limiters in order and stops at the first denial or error.
type chain []Limiter

// Chain composes limiters. A request is admitted only when every limiter
// admits it; limiters after the first denial are not consulted and so do not
// count the request.
//
// HOW THE CHAIN COUNTS:
// The server builds Chain(hourly, daily). Each Allow both checks and counts,
// so order matters:
//
//	hourly denies        → daily untouched, caller sees 429
//	hourly ok, daily no  → the hourly slot is spent, caller sees 429
//	both ok              → both counters advanced
//
// A denied attempt can still use up an hourly slot, but it never uses up a
// daily one. Nil limiters are dropped, so a disabled daily window is simply
// absent.
func Chain(limiters ...Limiter) Limiter {
	out := make(chain, 0, len(limiters))
	for _, l := range limiters {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

func (c chain) Allow(ctx context.Context, key string) (bool, error) {
	for _, l := range c {
		ok, err := l.Allow(ctx, key)
		if err != nil || !ok {
			return ok, err
		}
	}
	return true, nil
}

// ClientAddr returns the caller identity used for rate limiting: the first
// X-Forwarded-For entry, else CF-Connecting-IP, else UnknownClient.
//
// Both headers are client-controlled unless a trusted proxy overwrites them.
func ClientAddr(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}
	return UnknownClient
}
