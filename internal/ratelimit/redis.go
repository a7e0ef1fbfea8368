package ratelimit

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// allowScript admits a request when the key's counter is below the limit and
// counts it. The window starts at the first counted request.
//
// KEYS[1] counter key, ARGV[1] limit, ARGV[2] window in milliseconds.
//
// WHY A SCRIPT?
// GET, INCR and PEXPIRE as three round trips would let two instances both
// read "limit-1" and both admit. Redis runs a script atomically, so the
// check and the count happen as one step. The expiry is set only on the
// first INCR; later requests in the window leave it alone.
var allowScript = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
if current >= tonumber(ARGV[1]) then
	return 0
end
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

// RedisWindow is a fixed-window limiter whose counters live in Redis, so the
// budget is shared by every instance of the service and survives restarts.
//
// Keys are keyed BLAKE2b-256 hashes of the caller identity; raw client
// addresses are never written to Redis.
type RedisWindow struct {
	rdb     redis.Scripter
	limit   int
	period  time.Duration
	prefix  string
	hashKey []byte
}

// RedisOption configures a RedisWindow.
type RedisOption func(*RedisWindow)

// WithPrefix sets the Redis key prefix. Default "motto:ratelimit".
func WithPrefix(prefix string) RedisOption {
	return func(w *RedisWindow) { w.prefix = strings.Trim(prefix, ":") }
}

// WithHashKey sets the BLAKE2b key used to hash caller identities. Keys
// longer than 64 bytes are rejected by NewRedisWindow.
func WithHashKey(key string) RedisOption {
	return func(w *RedisWindow) { w.hashKey = []byte(key) }
}

// NewRedisWindow creates a limiter admitting limit requests per period per key.
func NewRedisWindow(rdb redis.Scripter, limit int, period time.Duration, opts ...RedisOption) (*RedisWindow, error) {
	w := &RedisWindow{
		rdb:    rdb,
		limit:  limit,
		period: period,
		prefix: "motto:ratelimit",
	}
	for _, opt := range opts {
		opt(w)
	}
	if len(w.hashKey) > blake2b.Size {
		return nil, fmt.Errorf("ratelimit: hash key longer than %d bytes", blake2b.Size)
	}
	if period < time.Millisecond {
		return nil, fmt.Errorf("ratelimit: window %s too short", period)
	}
	return w, nil
}

// Allow implements Limiter.
func (w *RedisWindow) Allow(ctx context.Context, key string) (bool, error) {
	n, err := allowScript.Run(ctx, w.rdb, []string{w.redisKey(key)}, w.limit, w.period.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: redis window: %w", err)
	}
	return n == 1, nil
}

func (w *RedisWindow) redisKey(key string) string {
	// blake2b.New256 only fails for keys over 64 bytes, checked in NewRedisWindow.
	h, _ := blake2b.New256(w.hashKey)
	h.Write([]byte(key))
	return w.prefix + ":" + hex.EncodeToString(h.Sum(nil))
}
