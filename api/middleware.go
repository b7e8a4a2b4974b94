package api

import (
	"context"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/xid"
	"github.com/ssgreg/logf"
)

type ctxKey int

const requestIDKey ctxKey = 0

// RequestID tags every request with a unique ID, honoring an incoming
// X-Request-ID from a trusted proxy and echoing it back in the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = xid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the request ID stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logging emits one structured line per completed request.
func Logging(logger *logf.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request handled",
				logf.String("request_id", GetRequestID(r.Context())),
				logf.String("method", r.Method),
				logf.String("path", r.URL.Path),
				logf.Int("status", ww.Status()),
				logf.Int("bytes", ww.BytesWritten()),
				logf.Duration("duration", time.Since(start)),
			)
		})
	}
}
