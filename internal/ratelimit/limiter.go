// Package ratelimit throttles failed logins with fixed-window Redis counters,
// keyed per login identifier and per client IP.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited is returned when the identifier or IP has used up its failed-login budget.
	ErrRateLimited = errors.New("too many login attempts")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("rate limiter unavailable")
)

// Reserves one attempt on every key, or none if any key is at the budget.
// ARGV[1] is the budget, ARGV[2] the window in milliseconds. Returns 1 when reserved.
const reserveScript = `
local max = tonumber(ARGV[1])
for _, key in ipairs(KEYS) do
  if tonumber(redis.call("GET", key) or "0") >= max then
    return 0
  end
end
for _, key in ipairs(KEYS) do
  if redis.call("INCR", key) == 1 then
    redis.call("PEXPIRE", key, ARGV[2])
  end
end
return 1
`

// Gives back one reserved attempt per key without going below zero.
const releaseScript = `
for _, key in ipairs(KEYS) do
  local count = tonumber(redis.call("GET", key) or "0")
  if count > 1 then
    redis.call("DECR", key)
  elseif count == 1 then
    redis.call("DEL", key)
  end
end
return 1
`

// Clears the identifier counter (KEYS[1]) and gives back the IP reservation (KEYS[2], optional).
const resetScript = `
redis.call("DEL", KEYS[1])
if KEYS[2] then
  local count = tonumber(redis.call("GET", KEYS[2]) or "0")
  if count > 1 then
    redis.call("DECR", KEYS[2])
  elseif count == 1 then
    redis.call("DEL", KEYS[2])
  end
end
return 1
`

var (
	reserveLua = redis.NewScript(reserveScript)
	releaseLua = redis.NewScript(releaseScript)
	resetLua   = redis.NewScript(resetScript)
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Window      time.Duration
}

// Limiter counts login attempts in Redis. Every attempt is counted up front by CheckLogin, so
// concurrent attempts can never exceed MaxAttempts; attempts that turn out not to be failed
// logins are handed back with Release or Reset.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New returns a Limiter backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return &Limiter{redis: client, config: cfg}
}

// CheckLogin atomically reserves one attempt against the identifier and IP budgets. It returns
// ErrRateLimited, reserving nothing, if either budget is already used up in the current window.
func (l *Limiter) CheckLogin(ctx context.Context, identifier, ip string) error {
	res, err := reserveLua.Run(ctx, l.redis, loginKeys(identifier, ip),
		l.config.MaxAttempts, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if res == 0 {
		return ErrRateLimited
	}
	return nil
}

// Release hands back an attempt reserved by CheckLogin that did not end in a failed login
// (for example a storage error).
func (l *Limiter) Release(ctx context.Context, identifier, ip string) error {
	if err := releaseLua.Run(ctx, l.redis, loginKeys(identifier, ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Reset clears the identifier counter after a successful login and hands back the IP
// reservation. Earlier failures stay on the IP counter so one valid account cannot launder
// attempts against others from the same IP.
func (l *Limiter) Reset(ctx context.Context, identifier, ip string) error {
	if err := resetLua.Run(ctx, l.redis, loginKeys(identifier, ip)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping verifies connectivity.
func (l *Limiter) Ping(ctx context.Context) error {
	if err := l.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func loginKeys(identifier, ip string) []string {
	keys := []string{loginIdentifierKey(identifier)}
	if ip != "" {
		keys = append(keys, loginIPKey(ip))
	}
	return keys
}

func loginIdentifierKey(identifier string) string { return "auth:login:id:" + identifier }
func loginIPKey(ip string) string                 { return "auth:login:ip:" + ip }
