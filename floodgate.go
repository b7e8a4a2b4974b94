// Package floodgate re-exports the core limiter API so callers can import
// the module path directly. The full API lives in pkg/floodgate.
package floodgate

import (
	fg "github.com/floodgate-io/floodgate/pkg/floodgate"
)

// Re-exported core types.
type (
	Limiter  = fg.Limiter
	Decision = fg.Decision
	Config   = fg.Config
	Store    = fg.Store
	Policy   = fg.Policy
	KeyFunc  = fg.KeyFunc
	Option   = fg.Option
)

// New builds a Limiter from functional options.
var New = fg.New

// Constructor options.
var (
	WithDefaults        = fg.WithDefaults
	WithStore           = fg.WithStore
	WithConfig          = fg.WithConfig
	WithConfigFile      = fg.WithConfigFile
	WithKeyFunc         = fg.WithKeyFunc
	WithRouteFunc       = fg.WithRouteFunc
	WithMetrics         = fg.WithMetrics
	WithClock           = fg.WithClock
	WithCleanupInterval = fg.WithCleanupInterval
)

// Key extractors.
var (
	KeyByIP          = fg.KeyByIP
	KeyByForwardedIP = fg.KeyByForwardedIP
	KeyByHeader      = fg.KeyByHeader
	KeyByBearerToken = fg.KeyByBearerToken
	KeyStatic        = fg.KeyStatic
	KeyChain         = fg.KeyChain
)

// Configuration loading.
var (
	DefaultConfig = fg.DefaultConfig
	LoadConfig    = fg.LoadConfig
)
