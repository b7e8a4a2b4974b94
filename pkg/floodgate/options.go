package floodgate

import (
	"fmt"
	"net/http"
	"time"
)

// Option configures a Limiter under construction.
type Option func(*limiter) error

// WithStore sets the store backing the default policy. Overrides any store
// the configuration would otherwise build.
func WithStore(store Store) Option {
	return func(l *limiter) error {
		if store == nil {
			return fmt.Errorf("%w: store cannot be nil", ErrInvalidConfig)
		}
		l.store = store
		return nil
	}
}

// WithConfig sets the full configuration.
func WithConfig(cfg *Config) Option {
	return func(l *limiter) error {
		if cfg == nil {
			return fmt.Errorf("%w: config cannot be nil", ErrInvalidConfig)
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		l.config = cfg
		return nil
	}
}

// WithConfigFile loads the configuration from a YAML file.
func WithConfigFile(path string) Option {
	return func(l *limiter) error {
		cfg, err := LoadConfig(path)
		if err != nil {
			return err
		}
		l.config = cfg
		return nil
	}
}

// WithDefaults sets the default policy directly: bursts up to capacity,
// refilling at rate tokens per second.
func WithDefaults(capacity int64, rate float64) Option {
	return func(l *limiter) error {
		p := RoutePolicy{Capacity: capacity, Rate: rate, Enabled: true}
		if err := p.Validate(); err != nil {
			return err
		}
		l.config.Defaults = p
		return nil
	}
}

// WithKeyFunc sets how the client key is derived from a request.
func WithKeyFunc(fn KeyFunc) Option {
	return func(l *limiter) error {
		if fn == nil {
			return fmt.Errorf("%w: key func cannot be nil", ErrInvalidConfig)
		}
		l.keyFn = fn
		return nil
	}
}

// WithRouteFunc sets how the route is derived from a request, e.g. to
// collapse path parameters onto one policy. Defaults to r.URL.Path.
func WithRouteFunc(fn func(*http.Request) string) Option {
	return func(l *limiter) error {
		if fn == nil {
			return fmt.Errorf("%w: route func cannot be nil", ErrInvalidConfig)
		}
		l.routeFn = fn
		return nil
	}
}

// WithMetrics sets the recorder observing every decision.
func WithMetrics(rec MetricsRecorder) Option {
	return func(l *limiter) error {
		if rec == nil {
			return fmt.Errorf("%w: metrics recorder cannot be nil", ErrInvalidConfig)
		}
		l.metrics = rec
		return nil
	}
}

// WithClock substitutes the time source. Intended for tests.
func WithClock(clock Clock) Option {
	return func(l *limiter) error {
		if clock == nil {
			return fmt.Errorf("%w: clock cannot be nil", ErrInvalidConfig)
		}
		l.clock = clock
		return nil
	}
}

// WithCleanupInterval sets how often StartCleanup evicts idle buckets.
func WithCleanupInterval(interval time.Duration) Option {
	return func(l *limiter) error {
		if interval <= 0 {
			return fmt.Errorf("%w: cleanup interval must be positive", ErrInvalidConfig)
		}
		l.cleanupInterval = interval
		return nil
	}
}
