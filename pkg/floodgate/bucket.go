package floodgate

import (
	"math"
	"sync"
	"time"
)

// Result describes the outcome of a single take against a bucket or store.
type Result struct {
	// Allowed reports whether the tokens were consumed.
	Allowed bool

	// Remaining is the number of whole tokens left after the take.
	Remaining int64

	// Limit is the bucket capacity (maximum burst).
	Limit int64

	// RetryAfter is how long until one token becomes available.
	// Zero when Allowed is true.
	RetryAfter time.Duration
}

// Bucket is a token bucket guarding a single key.
//
// Tokens accumulate at Rate per second up to Capacity and each admitted
// action consumes one (or n). Refill is lazy: it happens inside the take,
// proportional to elapsed time, never per call. All state transitions run
// under one mutex so concurrent takes cannot both spend the last token.
type Bucket struct {
	capacity   int64
	rate       float64
	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	clock      Clock
}

// NewBucket creates a full bucket. Capacity bounds the burst size and rate
// is the sustained refill in tokens per second. Both must be positive;
// misconfiguration is rejected here rather than surfacing as silent
// starvation at take time.
func NewBucket(capacity int64, rate float64) (*Bucket, error) {
	return newBucket(capacity, rate, systemClock{})
}

func newBucket(capacity int64, rate float64, clock Clock) (*Bucket, error) {
	if capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if rate <= 0 || math.IsInf(rate, 0) || math.IsNaN(rate) {
		return nil, ErrInvalidRate
	}
	return &Bucket{
		capacity:   capacity,
		rate:       rate,
		tokens:     float64(capacity),
		lastRefill: clock.Now(),
		clock:      clock,
	}, nil
}

// Allow reports whether one token could be consumed.
func (b *Bucket) Allow() bool {
	res, err := b.Take(1)
	return err == nil && res.Allowed
}

// Take attempts to consume n tokens and reports the full outcome.
// Denied takes leave the token count untouched but still advance the
// refill timestamp. A non-positive n is rejected: consuming it would
// push the count outside [0, capacity] and mint future admissions.
func (b *Bucket) Take(n int64) (Result, error) {
	if n <= 0 {
		return Result{}, ErrInvalidCost
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()

	res := Result{Limit: b.capacity}
	if b.tokens >= float64(n) {
		b.tokens -= float64(n)
		res.Allowed = true
		res.Remaining = int64(b.tokens)
		return res, nil
	}

	res.Remaining = int64(b.tokens)
	res.RetryAfter = b.untilAvailable(n)
	return res, nil
}

// refill credits tokens for the time elapsed since the last refill,
// clamped to capacity. Excess is discarded, not banked. Callers must
// hold b.mu.
func (b *Bucket) refill() {
	now := b.clock.Now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = math.Min(b.tokens+elapsed*b.rate, float64(b.capacity))
	}
	b.lastRefill = now
}

// untilAvailable computes the wait for n tokens. Callers must hold b.mu.
func (b *Bucket) untilAvailable(n int64) time.Duration {
	missing := float64(n) - b.tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / b.rate * float64(time.Second))
}

// Remaining returns a snapshot of the whole tokens currently available.
func (b *Bucket) Remaining() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return int64(b.tokens)
}

// RetryAfter returns how long a caller should wait before a single-token
// take would succeed. Zero means a take can succeed now.
func (b *Bucket) RetryAfter() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.untilAvailable(1)
}

// Capacity returns the maximum burst size.
func (b *Bucket) Capacity() int64 { return b.capacity }

// Rate returns the refill rate in tokens per second.
func (b *Bucket) Rate() float64 { return b.rate }
