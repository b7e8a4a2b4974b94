package floodgate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Redis integration tests need an instance on localhost:6379.
// Skip with: go test -short
func newTestRedisStore(t *testing.T, policy Policy) *RedisStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping Redis integration test")
	}

	s, err := NewRedisStore(RedisConfig{
		Addr: "localhost:6379",
		DB:   15, // separate DB for tests
		TTL:  time.Minute,
	}, policy)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		t.Skip("Redis not available:", err)
	}

	t.Cleanup(func() {
		s.client.FlushDB(context.Background())
		s.Close()
	})
	return s
}

func TestRedisStoreValidation(t *testing.T) {
	_, err := NewRedisStore(RedisConfig{Addr: "localhost:6379"}, Policy{Capacity: 0, Rate: 1})
	require.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = NewRedisStore(RedisConfig{Addr: "localhost:6379"}, Policy{Capacity: 1, Rate: 0})
	require.ErrorIs(t, err, ErrInvalidRate)
}

func TestRedisStoreTake(t *testing.T) {
	s := newTestRedisStore(t, Policy{Capacity: 3, Rate: 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := s.Take(ctx, "client-a", 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "take %d should be allowed", i+1)
		assert.Equal(t, int64(3), res.Limit)
	}

	res, err := s.Take(ctx, "client-a", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	// Other keys keep their full burst.
	res, err = s.Take(ctx, "client-b", 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisStoreEmptyKey(t *testing.T) {
	s := newTestRedisStore(t, Policy{Capacity: 1, Rate: 1})
	_, err := s.Take(context.Background(), "", 1)
	require.ErrorIs(t, err, ErrEmptyKey)
}

func TestRedisStoreRejectsNonPositiveCost(t *testing.T) {
	// Cost validation happens before the script runs, so no live Redis
	// is needed.
	s, err := NewRedisStore(RedisConfig{Addr: "localhost:6379"}, Policy{Capacity: 3, Rate: 1})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Take(context.Background(), "k", 0)
	require.ErrorIs(t, err, ErrInvalidCost)
	_, err = s.Take(context.Background(), "k", -100)
	require.ErrorIs(t, err, ErrInvalidCost)
}

func TestRedisStoreClockSkew(t *testing.T) {
	ahead := newTestRedisStore(t, Policy{Capacity: 1, Rate: 1})
	behind := newTestRedisStore(t, Policy{Capacity: 1, Rate: 1})

	aheadClock := newFakeClock()
	aheadClock.Advance(5 * time.Second)
	ahead.clock = aheadClock
	behind.clock = newFakeClock()
	ctx := context.Background()

	res, err := ahead.Take(ctx, "shared", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	// The instance with the lagging clock sees an empty bucket and must
	// not be credited for a negative interval.
	res, err = behind.Take(ctx, "shared", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// The stored timestamp must not have moved backward: the leading
	// instance's own interval is spent and may not be re-credited.
	res, err = ahead.Take(ctx, "shared", 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed, "interval before the skewed take must not refill twice")
}

func TestRedisStoreRefill(t *testing.T) {
	s := newTestRedisStore(t, Policy{Capacity: 1, Rate: 10})
	ctx := context.Background()

	res, err := s.Take(ctx, "refill", 1)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = s.Take(ctx, "refill", 1)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	// At 10 tokens/sec one token is back within 100ms.
	time.Sleep(150 * time.Millisecond)
	res, err = s.Take(ctx, "refill", 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, err := NewRedisStore(RedisConfig{Addr: "localhost:1"}, Policy{Capacity: 1, Rate: 1})
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	_, err = s.Take(ctx, "k", 1)
	require.ErrorIs(t, err, ErrStoreUnavailable)
}
