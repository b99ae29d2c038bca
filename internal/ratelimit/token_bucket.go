package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Tokens come back as a string because redis truncates Lua numbers to integers.
const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl_ms = tonumber(ARGV[3])

local clock = redis.call("TIME")
local now = tonumber(clock[1]) * 1000 + math.floor(tonumber(clock[2]) / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or burst
local last = tonumber(state[2]) or now

local elapsed = now - last
if elapsed < 0 then
  elapsed = 0
end
tokens = math.min(burst, tokens + (elapsed * rate / 1000))

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", tostring(now))
redis.call("PEXPIRE", KEYS[1], ttl_ms)

return {allowed, tostring(tokens)}
`

var (
	ErrBucketNotReady = errors.New("token_bucket_not_configured")
	ErrBucketKey      = errors.New("token_bucket_empty_key")
	ErrBucketParams   = errors.New("token_bucket_invalid_params")
)

// TokenBucket refills continuously at rate tokens per second up to burst.
type TokenBucket struct {
	client redis.Cmdable
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  float64
	RetryAfter time.Duration
}

func NewTokenBucket(client redis.Cmdable) *TokenBucket {
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrBucketNotReady
	}
	if key == "" {
		return nil, ErrBucketKey
	}
	if rate <= 0 || burst <= 0 {
		return nil, ErrBucketParams
	}

	raw, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, bucketTTL(rate, burst).Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("token bucket: unexpected reply of %d values", len(raw))
	}

	allowed, _ := raw[0].(int64)
	remaining, err := parseTokens(raw[1])
	if err != nil {
		return nil, err
	}

	result := &RateLimitResult{
		Allowed:   allowed == 1,
		Limit:     burst,
		Remaining: remaining,
	}
	if !result.Allowed {
		result.RetryAfter = time.Duration((1 - remaining) / rate * float64(time.Second))
	}
	return result, nil
}

// bucketTTL keeps idle buckets around for twice the time a full refill takes.
func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil(float64(burst) / rate * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}

func parseTokens(v any) (float64, error) {
	switch val := v.(type) {
	case string:
		return strconv.ParseFloat(val, 64)
	case int64:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("token bucket: unexpected token type %T", v)
	}
}
