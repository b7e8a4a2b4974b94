// Package floodgate provides token bucket rate limiting for Go services.
//
// Each client key owns a bucket that refills at a fixed rate up to a
// capacity bounding burst size. Admitted work consumes tokens; denied work
// leaves the bucket untouched and reports how long to wait.
//
// # Quick start
//
//	limiter, err := floodgate.New(
//	    floodgate.WithDefaults(100, 10), // bursts of 100, 10 req/sec sustained
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	dec, err := limiter.Allow(ctx, "user-123")
//	if err == nil && !dec.Allowed {
//	    fmt.Printf("rate limited, retry after %v\n", dec.RetryAfter)
//	}
//
// # HTTP middleware
//
//	limiter, _ := floodgate.New(
//	    floodgate.WithDefaults(100, 10),
//	    floodgate.WithKeyFunc(floodgate.KeyByForwardedIP()),
//	)
//	http.Handle("/api/", limiter.Middleware(apiHandler))
//
// Denied requests receive 429 Too Many Requests with a Retry-After header
// and a JSON body:
//
//	{"error": "Rate limit exceeded", "message": "...", "retry_after": 3}
//
// Every response carries X-RateLimit-Limit, X-RateLimit-Remaining and, on
// denial, X-RateLimit-Reset.
//
// # Configuration
//
// Policies load from YAML, with per-route overrides and an optional shared
// Redis backend:
//
//	defaults:
//	  capacity: 100
//	  refill_rate: 10
//	  enabled: true
//	policies:
//	  "/api/login":
//	    capacity: 5
//	    refill_rate: 0.5
//	    enabled: true
//	key_by: ip-proxy
//	cleanup_age: 1h
//	redis:
//	  addr: localhost:6379
//	  ttl: 1h
//
// With the redis section present, bucket state lives in Redis and the
// refill-and-consume step runs as a Lua script, so multiple service
// instances enforce one shared limit.
package floodgate
