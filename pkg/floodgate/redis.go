package floodgate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "floodgate:"

// takeScript performs the refill and consume as one atomic step on the
// Redis side. Timestamps travel as microseconds since epoch so the script
// never depends on clock agreement between Redis and the callers beyond
// the caller's own monotonic progression.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local n = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil or ts == nil then
  tokens = capacity
  ts = now
end

local elapsed = (now - ts) / 1000000
if elapsed > 0 then
  tokens = math.min(tokens + elapsed * rate, capacity)
else
  -- Caller clock behind the stored timestamp (skewed instances or a
  -- stepped wall clock): credit nothing and keep ts where it is, so a
  -- faster caller's interval is never re-credited.
  now = ts
end

local allowed = 0
local wait_ms = 0
if tokens >= n then
  tokens = tokens - n
  allowed = 1
else
  wait_ms = math.ceil((n - tokens) / rate * 1000)
end
if tokens < 0 then
  tokens = 0
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, math.floor(tokens), wait_ms}
`)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Addr is the Redis address, e.g. "localhost:6379".
	Addr string

	// Password authenticates the connection; empty for no auth.
	Password string

	// DB selects the Redis database number.
	DB int

	// TTL bounds how long idle bucket state survives in Redis.
	// Defaults to one hour.
	TTL time.Duration
}

// RedisStore implements Store on Redis so several instances can share one
// set of limits. Each take runs a Lua script, making the refill-and-consume
// a single critical section even under concurrent clients.
type RedisStore struct {
	client *redis.Client
	policy Policy
	ttl    time.Duration
	clock  Clock
}

// NewRedisStore connects a store applying policy to every key.
func NewRedisStore(cfg RedisConfig, policy Policy) (*RedisStore, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	return &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		policy: policy,
		ttl:    ttl,
		clock:  systemClock{},
	}, nil
}

// Take consumes n tokens for key via the server-side script.
func (s *RedisStore) Take(ctx context.Context, key string, n int64) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if n <= 0 {
		return Result{}, ErrInvalidCost
	}

	now := s.clock.Now().UnixMicro()
	vals, err := takeScript.Run(ctx, s.client,
		[]string{redisKeyPrefix + key},
		s.policy.Capacity, s.policy.Rate, now, n, s.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("%w: unexpected script reply", ErrStoreUnavailable)
	}

	res := Result{
		Allowed:   vals[0] == 1,
		Remaining: vals[1],
		Limit:     s.policy.Capacity,
	}
	if !res.Allowed {
		res.RetryAfter = time.Duration(vals[2]) * time.Millisecond
	}
	return res, nil
}

// Ping reports whether the Redis backend is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error { return s.client.Close() }
