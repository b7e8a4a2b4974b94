package floodgate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML-loadable limiter configuration. It carries the default
// policy, optional per-route overrides, the key derivation scheme, and an
// optional Redis backend.
type Config struct {
	// Defaults applies to every route without an explicit policy.
	Defaults RoutePolicy `yaml:"defaults"`

	// Policies overrides the defaults for specific route paths,
	// e.g. a strict policy for "/api/login".
	Policies map[string]RoutePolicy `yaml:"policies,omitempty"`

	// KeyBy selects client identification: "ip", "ip-proxy",
	// "header:<Name>", "bearer" or "static:<key>".
	KeyBy string `yaml:"key_by,omitempty"`

	// CleanupAge is how long idle buckets are kept, e.g. "1h".
	// "0" disables eviction.
	CleanupAge string `yaml:"cleanup_age,omitempty"`

	// Redis, when set, switches bucket state to a shared Redis backend.
	Redis *RedisSection `yaml:"redis,omitempty"`
}

// RoutePolicy defines the bucket parameters for one route (or the default).
type RoutePolicy struct {
	// Capacity is the maximum burst size.
	Capacity int64 `yaml:"capacity"`

	// Rate is the sustained refill in tokens per second.
	Rate float64 `yaml:"refill_rate"`

	// Enabled turns limiting off for a route when false.
	Enabled bool `yaml:"enabled"`
}

// RedisSection configures the shared Redis backend.
type RedisSection struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`

	// TTL bounds idle bucket state lifetime in Redis, e.g. "1h".
	TTL string `yaml:"ttl,omitempty"`
}

// ToRedisConfig converts the section into a RedisConfig.
func (s *RedisSection) ToRedisConfig() (RedisConfig, error) {
	cfg := RedisConfig{Addr: s.Addr, Password: s.Password, DB: s.DB}
	if s.TTL != "" {
		ttl, err := time.ParseDuration(s.TTL)
		if err != nil {
			return RedisConfig{}, fmt.Errorf("%w: redis ttl: %v", ErrInvalidConfig, err)
		}
		cfg.TTL = ttl
	}
	return cfg, nil
}

// DefaultConfig returns a config with a moderate default policy: bursts of
// 100 with a sustained 10 requests per second, keyed by client IP.
func DefaultConfig() *Config {
	return &Config{
		Defaults: RoutePolicy{
			Capacity: 100,
			Rate:     10,
			Enabled:  true,
		},
		Policies:   make(map[string]RoutePolicy),
		KeyBy:      "ip",
		CleanupAge: "1h",
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading config file: %v", ErrInvalidConfig, err)
	}

	cfg := Config{}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: parsing YAML: %v", ErrInvalidConfig, err)
	}

	if cfg.KeyBy == "" {
		cfg.KeyBy = "ip"
	}
	if cfg.CleanupAge == "" {
		cfg.CleanupAge = "1h"
	}
	if cfg.Policies == nil {
		cfg.Policies = make(map[string]RoutePolicy)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every policy and the key derivation scheme.
func (c *Config) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return fmt.Errorf("%w: defaults: %v", ErrInvalidConfig, err)
	}
	for route, policy := range c.Policies {
		if err := policy.Validate(); err != nil {
			return fmt.Errorf("%w: policy for route %s: %v", ErrInvalidConfig, route, err)
		}
	}
	if c.KeyBy != "" {
		if _, err := ParseKeyFunc(c.KeyBy); err != nil {
			return err
		}
	}
	if c.CleanupAge != "" {
		if _, err := c.cleanupAge(); err != nil {
			return err
		}
	}
	if c.Redis != nil {
		if c.Redis.Addr == "" {
			return fmt.Errorf("%w: redis addr is required", ErrInvalidConfig)
		}
		if _, err := c.Redis.ToRedisConfig(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) cleanupAge() (time.Duration, error) {
	if c.CleanupAge == "" || c.CleanupAge == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.CleanupAge)
	if err != nil {
		return 0, fmt.Errorf("%w: cleanup_age: %v", ErrInvalidConfig, err)
	}
	return d, nil
}

// Validate rejects non-positive bucket parameters. Disabled routes still
// validate so a typo does not hide behind enabled=false.
func (p RoutePolicy) Validate() error {
	return p.toPolicy().Validate()
}

func (p RoutePolicy) toPolicy() Policy {
	return Policy{Capacity: p.Capacity, Rate: p.Rate}
}

// PolicyFor returns the policy for route, falling back to the defaults.
func (c *Config) PolicyFor(route string) RoutePolicy {
	if p, ok := c.Policies[route]; ok {
		return p
	}
	return c.Defaults
}
