package floodgate

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// KeyFunc derives the rate limit key identifying a client from a request.
type KeyFunc func(*http.Request) (string, error)

// KeyByIP keys on the connection's remote address.
func KeyByIP() KeyFunc {
	return func(r *http.Request) (string, error) {
		ip := remoteIP(r)
		if ip == "" {
			return "", fmt.Errorf("%w: no remote address", ErrKeyExtraction)
		}
		return "ip:" + ip, nil
	}
}

// KeyByForwardedIP keys on the original client IP behind a reverse proxy,
// preferring X-Forwarded-For, then X-Real-IP, then the remote address.
// Only use this when a trusted proxy sets these headers; clients can forge
// them otherwise.
func KeyByForwardedIP() KeyFunc {
	return func(r *http.Request) (string, error) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			// First entry is the originating client.
			if ip := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0]); ip != "" {
				return "ip:" + ip, nil
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return "ip:" + xri, nil
		}
		ip := remoteIP(r)
		if ip == "" {
			return "", fmt.Errorf("%w: no remote address", ErrKeyExtraction)
		}
		return "ip:" + ip, nil
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// KeyByHeader keys on the value of a request header, e.g. an API key.
func KeyByHeader(name string) KeyFunc {
	return func(r *http.Request) (string, error) {
		v := r.Header.Get(name)
		if v == "" {
			return "", fmt.Errorf("%w: header %s missing or empty", ErrKeyExtraction, name)
		}
		return "header:" + name + ":" + v, nil
	}
}

// KeyByBearerToken keys on the token of an "Authorization: Bearer" header.
func KeyByBearerToken() KeyFunc {
	return func(r *http.Request) (string, error) {
		auth := r.Header.Get("Authorization")
		scheme, token, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
			return "", fmt.Errorf("%w: missing or malformed bearer token", ErrKeyExtraction)
		}
		return "bearer:" + token, nil
	}
}

// KeyStatic returns the same key for every request, giving all clients one
// shared global limit.
func KeyStatic(key string) KeyFunc {
	return func(*http.Request) (string, error) {
		if key == "" {
			return "", fmt.Errorf("%w: static key is empty", ErrKeyExtraction)
		}
		return key, nil
	}
}

// KeyChain tries each KeyFunc in order and uses the first that succeeds.
// Typical use: key on an API key header, falling back to the client IP for
// unauthenticated traffic.
func KeyChain(funcs ...KeyFunc) KeyFunc {
	return func(r *http.Request) (string, error) {
		var lastErr error
		for _, fn := range funcs {
			key, err := fn(r)
			if err == nil && key != "" {
				return key, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = ErrKeyExtraction
		}
		return "", fmt.Errorf("%w: no key source matched: %v", ErrKeyExtraction, lastErr)
	}
}

// ParseKeyFunc builds a KeyFunc from a config string:
//
//	"ip"             connection remote address
//	"ip-proxy"       proxy-aware client IP
//	"header:<Name>"  request header value
//	"bearer"         Authorization bearer token
//	"static:<key>"   one shared key for all clients
func ParseKeyFunc(scheme string) (KeyFunc, error) {
	kind, arg, _ := strings.Cut(scheme, ":")
	switch kind {
	case "ip":
		return KeyByIP(), nil
	case "ip-proxy":
		return KeyByForwardedIP(), nil
	case "header":
		if arg == "" {
			return nil, fmt.Errorf("%w: key_by header requires a header name", ErrInvalidConfig)
		}
		return KeyByHeader(arg), nil
	case "bearer":
		return KeyByBearerToken(), nil
	case "static":
		if arg == "" {
			return nil, fmt.Errorf("%w: key_by static requires a key", ErrInvalidConfig)
		}
		return KeyStatic(arg), nil
	default:
		return nil, fmt.Errorf("%w: unknown key_by %q", ErrInvalidConfig, scheme)
	}
}
