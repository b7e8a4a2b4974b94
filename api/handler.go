// Package api implements the HTTP surface of the floodgate check service.
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/ssgreg/logf"

	"github.com/floodgate-io/floodgate/pkg/floodgate"
)

// Handler serves rate limit checks for clients that enforce limits
// out of process.
type Handler struct {
	limiter floodgate.Limiter
	logger  *logf.Logger
}

// NewHandler creates a Handler backed by limiter.
func NewHandler(limiter floodgate.Limiter, logger *logf.Logger) *Handler {
	if logger == nil {
		logger = logf.NewDisabledLogger()
	}
	return &Handler{limiter: limiter, logger: logger}
}

// CheckRequest is the body of POST /v1/check.
type CheckRequest struct {
	// ClientID identifies the bucket: a user ID, API key, IP, etc.
	ClientID string `json:"client_id"`

	// Cost is how many tokens this check consumes. Defaults to 1.
	Cost int64 `json:"cost,omitempty"`
}

// CheckResponse reports the decision.
type CheckResponse struct {
	Allowed   bool  `json:"allowed"`
	Remaining int64 `json:"remaining"`
	Limit     int64 `json:"limit"`

	// RetryAfter is seconds to wait before retrying; present when denied.
	RetryAfter int64 `json:"retry_after,omitempty"`

	// ResetAt is the Unix timestamp when a retry will succeed; present
	// when denied.
	ResetAt int64 `json:"reset_at,omitempty"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// CheckRateLimit handles POST /v1/check. Denials answer 429 with the same
// body shape; that is the expected outcome of a full bucket, not an error.
func (h *Handler) CheckRateLimit(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ClientID == "" {
		h.sendError(w, http.StatusBadRequest, "missing_client_id", "client_id is required")
		return
	}
	cost := req.Cost
	if cost <= 0 {
		cost = 1
	}

	dec, err := h.limiter.AllowN(r.Context(), req.ClientID, cost)
	if err != nil {
		h.logger.Error("rate limit check failed", logf.Error(err),
			logf.String("client_id", req.ClientID))
		if errors.Is(err, floodgate.ErrStoreUnavailable) {
			h.sendError(w, http.StatusServiceUnavailable, "store_unavailable",
				"rate limit backend is unreachable")
			return
		}
		h.sendError(w, http.StatusInternalServerError, "internal_error",
			"rate limit check failed")
		return
	}

	resp := CheckResponse{
		Allowed:   dec.Allowed,
		Remaining: dec.Remaining,
		Limit:     dec.Limit,
	}
	status := http.StatusOK
	if !dec.Allowed {
		status = http.StatusTooManyRequests
		resp.RetryAfter = int64(math.Ceil(dec.RetryAfter.Seconds()))
		if resp.RetryAfter < 1 {
			resp.RetryAfter = 1
		}
		resp.ResetAt = time.Now().Add(dec.RetryAfter).Unix()
		w.Header().Set("Retry-After", strconv.FormatInt(resp.RetryAfter, 10))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// Health handles GET /healthz.
func Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "ok",
		"service": "floodgate",
	})
}

func (h *Handler) sendError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorBody{Error: code, Message: message})
}
