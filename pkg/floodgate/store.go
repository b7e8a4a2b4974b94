package floodgate

import (
	"context"
	"sync"
	"time"
)

// Store keeps per-key bucket state and performs takes against it.
//
// Take must be atomic per key: two concurrent takes for the same key must
// never both spend the last token. Implementations may be process-local
// (MemoryStore) or shared between instances (RedisStore).
type Store interface {
	// Take attempts to consume n tokens for key, creating state for
	// unseen keys as needed.
	Take(ctx context.Context, key string, n int64) (Result, error)

	// Close releases any resources held by the store.
	Close() error
}

// Policy holds the bucket parameters applied to every key in a store.
type Policy struct {
	// Capacity is the maximum burst size.
	Capacity int64

	// Rate is the sustained refill in tokens per second.
	Rate float64
}

// Validate rejects non-positive parameters.
func (p Policy) Validate() error {
	if p.Capacity <= 0 {
		return ErrInvalidCapacity
	}
	if p.Rate <= 0 {
		return ErrInvalidRate
	}
	return nil
}

// MemoryStore implements Store with one in-process bucket per key.
// It is safe for concurrent use and suitable for single-instance
// deployments; use RedisStore when several instances must share limits.
type MemoryStore struct {
	policy Policy
	clock  Clock

	mu      sync.RWMutex
	buckets map[string]*memoryEntry

	idleAfter time.Duration
}

type memoryEntry struct {
	bucket *Bucket

	mu       sync.Mutex
	lastSeen time.Time
}

func (e *memoryEntry) touch(now time.Time) {
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()
}

// NewMemoryStore creates a store applying policy to every key. Buckets idle
// longer than idleAfter are removed by Cleanup; zero disables eviction.
func NewMemoryStore(policy Policy, idleAfter time.Duration) (*MemoryStore, error) {
	return newMemoryStore(policy, idleAfter, systemClock{})
}

func newMemoryStore(policy Policy, idleAfter time.Duration, clock Clock) (*MemoryStore, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &MemoryStore{
		policy:    policy,
		clock:     clock,
		buckets:   make(map[string]*memoryEntry),
		idleAfter: idleAfter,
	}, nil
}

// Take consumes n tokens for key, creating the bucket on first sight.
func (s *MemoryStore) Take(_ context.Context, key string, n int64) (Result, error) {
	if key == "" {
		return Result{}, ErrEmptyKey
	}
	if n <= 0 {
		return Result{}, ErrInvalidCost
	}
	entry, err := s.entry(key)
	if err != nil {
		return Result{}, err
	}
	entry.touch(s.clock.Now())
	return entry.bucket.Take(n)
}

func (s *MemoryStore) entry(key string) (*memoryEntry, error) {
	// Fast path: bucket already exists.
	s.mu.RLock()
	entry, ok := s.buckets[key]
	s.mu.RUnlock()
	if ok {
		return entry, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have created it between the locks.
	if entry, ok = s.buckets[key]; ok {
		return entry, nil
	}

	bucket, err := newBucket(s.policy.Capacity, s.policy.Rate, s.clock)
	if err != nil {
		return nil, err
	}
	entry = &memoryEntry{bucket: bucket, lastSeen: s.clock.Now()}
	s.buckets[key] = entry
	return entry, nil
}

// Cleanup removes buckets that have not been touched within the idle age
// and returns how many were removed.
func (s *MemoryStore) Cleanup() int {
	if s.idleAfter <= 0 {
		return 0
	}

	cutoff := s.clock.Now().Add(-s.idleAfter)
	removed := 0

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.buckets {
		entry.mu.Lock()
		stale := entry.lastSeen.Before(cutoff)
		entry.mu.Unlock()
		if stale {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets)
}

// StartCleanup launches a goroutine that runs Cleanup every interval.
// The returned function stops it and is safe to call more than once.
func (s *MemoryStore) StartCleanup(interval time.Duration) func() {
	if s.idleAfter <= 0 || interval <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

// Close implements Store. MemoryStore holds no external resources.
func (s *MemoryStore) Close() error { return nil }
