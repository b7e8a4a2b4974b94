package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ssgreg/logf"
)

// NewRouter wires the service routes with request-ID and logging middleware.
func NewRouter(h *Handler, logger *logf.Logger) chi.Router {
	if logger == nil {
		logger = logf.NewDisabledLogger()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logging(logger))

	r.Post("/v1/check", h.CheckRateLimit)
	r.Get("/healthz", Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}
