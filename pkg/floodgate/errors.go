package floodgate

import "errors"

var (
	// ErrInvalidCapacity is returned when a bucket capacity is zero or negative.
	ErrInvalidCapacity = errors.New("bucket capacity must be positive")

	// ErrInvalidRate is returned when a refill rate is zero or negative.
	ErrInvalidRate = errors.New("refill rate must be positive")

	// ErrEmptyKey is returned when a rate limit key is empty.
	ErrEmptyKey = errors.New("rate limit key cannot be empty")

	// ErrInvalidCost is returned when a take asks for zero or negative tokens.
	ErrInvalidCost = errors.New("take cost must be positive")

	// ErrInvalidConfig is returned when configuration fails validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrStoreUnavailable is returned when a store backend cannot be reached.
	ErrStoreUnavailable = errors.New("store backend unavailable")

	// ErrKeyExtraction is returned when no key could be derived from a request.
	ErrKeyExtraction = errors.New("failed to extract key from request")
)
