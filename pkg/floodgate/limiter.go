package floodgate

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"
)

// Limiter admits or denies work per client key, with an HTTP middleware
// front-end for throttled endpoints.
type Limiter interface {
	// Allow checks whether one unit of work is admitted for key.
	Allow(ctx context.Context, key string) (*Decision, error)

	// AllowN checks whether n units of work are admitted for key.
	AllowN(ctx context.Context, key string, n int64) (*Decision, error)

	// AllowRequest derives the key from the request using the configured
	// KeyFunc and checks it against the policy for the request's route.
	AllowRequest(r *http.Request) (*Decision, error)

	// Middleware wraps next with rate limiting: denied requests get a
	// 429 with a Retry-After header and a JSON error body.
	Middleware(next http.Handler) http.Handler

	// StartCleanup launches idle-bucket eviction for in-memory backends
	// and returns a stop function.
	StartCleanup() func()

	// Close releases store resources.
	Close() error
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether the request should proceed.
	Allowed bool

	// Remaining is the number of tokens left for the key.
	Remaining int64

	// Limit is the bucket capacity (maximum burst).
	Limit int64

	// RetryAfter is how long to wait before retrying; zero when allowed.
	RetryAfter time.Duration

	// Key is the client key the decision applied to.
	Key string

	// Route is the route whose policy was applied, when the decision came
	// from an HTTP request.
	Route string
}

type limiter struct {
	config  *Config
	keyFn   KeyFunc
	routeFn func(*http.Request) string
	clock   Clock
	metrics MetricsRecorder

	store       Store
	routeStores map[string]Store

	cleanupInterval time.Duration
}

// New builds a Limiter from functional options. Without options it applies
// the DefaultConfig policy, keyed by client IP, backed by in-process memory.
//
//	limiter, err := floodgate.New(
//	    floodgate.WithDefaults(100, 10),
//	    floodgate.WithKeyFunc(floodgate.KeyByForwardedIP()),
//	)
func New(opts ...Option) (Limiter, error) {
	l := &limiter{
		config:          DefaultConfig(),
		routeFn:         func(r *http.Request) string { return r.URL.Path },
		clock:           systemClock{},
		metrics:         NopMetrics{},
		cleanupInterval: 10 * time.Minute,
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, fmt.Errorf("applying option: %w", err)
		}
	}

	if l.keyFn == nil {
		fn, err := ParseKeyFunc(l.config.KeyBy)
		if err != nil {
			return nil, err
		}
		l.keyFn = fn
	}

	if l.store == nil {
		store, err := l.buildStore(l.config.Defaults.toPolicy())
		if err != nil {
			return nil, fmt.Errorf("building default store: %w", err)
		}
		l.store = store
	}

	l.routeStores = make(map[string]Store, len(l.config.Policies))
	for route, policy := range l.config.Policies {
		if !policy.Enabled {
			continue
		}
		store, err := l.buildStore(policy.toPolicy())
		if err != nil {
			return nil, fmt.Errorf("building store for route %s: %w", route, err)
		}
		l.routeStores[route] = store
	}

	return l, nil
}

func (l *limiter) buildStore(policy Policy) (Store, error) {
	if l.config.Redis != nil {
		cfg, err := l.config.Redis.ToRedisConfig()
		if err != nil {
			return nil, err
		}
		return NewRedisStore(cfg, policy)
	}

	age, err := l.config.cleanupAge()
	if err != nil {
		return nil, err
	}
	return newMemoryStore(policy, age, l.clock)
}

func (l *limiter) Allow(ctx context.Context, key string) (*Decision, error) {
	return l.AllowN(ctx, key, 1)
}

func (l *limiter) AllowN(ctx context.Context, key string, n int64) (*Decision, error) {
	return l.take(ctx, l.store, key, "", n)
}

func (l *limiter) take(ctx context.Context, store Store, key, route string, n int64) (*Decision, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	// Validated here as well so custom Store implementations cannot be
	// handed a token-minting negative cost.
	if n <= 0 {
		return nil, ErrInvalidCost
	}
	start := l.clock.Now()

	res, err := store.Take(ctx, key, n)
	if err != nil {
		return nil, err
	}
	l.metrics.Decision(route, res.Allowed, l.clock.Now().Sub(start))

	return &Decision{
		Allowed:    res.Allowed,
		Remaining:  res.Remaining,
		Limit:      res.Limit,
		RetryAfter: res.RetryAfter,
		Key:        key,
		Route:      route,
	}, nil
}

func (l *limiter) AllowRequest(r *http.Request) (*Decision, error) {
	key, err := l.keyFn(r)
	if err != nil {
		return nil, err
	}
	route := l.routeFn(r)

	policy := l.config.PolicyFor(route)
	if !policy.Enabled {
		return &Decision{
			Allowed:   true,
			Remaining: policy.Capacity,
			Limit:     policy.Capacity,
			Key:       key,
			Route:     route,
		}, nil
	}

	store := l.store
	storeKey := key
	if rs, ok := l.routeStores[route]; ok {
		store = rs
		// Route-scoped storage key so shared backends keep per-route
		// buckets apart for the same client.
		storeKey = route + "|" + key
	}

	dec, err := l.take(r.Context(), store, storeKey, route, 1)
	if err != nil {
		return nil, err
	}
	dec.Key = key
	return dec, nil
}

// denialBody is the documented shape of a throttled response.
type denialBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int64  `json:"retry_after"`
}

func (l *limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dec, err := l.AllowRequest(r)
		if err != nil {
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(dec.Limit, 10))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))

		if !dec.Allowed {
			retryAfter := retryAfterSeconds(dec.RetryAfter)
			w.Header().Set("X-RateLimit-Reset",
				strconv.FormatInt(l.clock.Now().Add(dec.RetryAfter).Unix(), 10))
			w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(denialBody{
				Error:      "Rate limit exceeded",
				Message:    "Too many requests. Please retry later.",
				RetryAfter: retryAfter,
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfterSeconds rounds a wait up to whole seconds, never below one,
// so impatient clients do not busy-retry inside the same second.
func retryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

func (l *limiter) StartCleanup() func() {
	stops := make([]func(), 0, len(l.routeStores)+1)
	if ms, ok := l.store.(*MemoryStore); ok {
		stops = append(stops, ms.StartCleanup(l.cleanupInterval))
	}
	for _, store := range l.routeStores {
		if ms, ok := store.(*MemoryStore); ok {
			stops = append(stops, ms.StartCleanup(l.cleanupInterval))
		}
	}
	return func() {
		for _, stop := range stops {
			stop()
		}
	}
}

func (l *limiter) Close() error {
	err := l.store.Close()
	for _, store := range l.routeStores {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
