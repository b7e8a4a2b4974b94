package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floodgate-io/floodgate/pkg/floodgate"
)

func newTestRouter(t *testing.T, capacity int64, rate float64) http.Handler {
	t.Helper()
	limiter, err := floodgate.New(floodgate.WithDefaults(capacity, rate))
	require.NoError(t, err)
	t.Cleanup(func() { limiter.Close() })
	return NewRouter(NewHandler(limiter, nil), nil)
}

func postCheck(t *testing.T, router http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", "/v1/check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestCheckAllowed(t *testing.T) {
	router := newTestRouter(t, 5, 1)

	rr := postCheck(t, router, `{"client_id":"user-1"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
	assert.Equal(t, int64(4), resp.Remaining)
	assert.Equal(t, int64(5), resp.Limit)
	assert.Zero(t, resp.RetryAfter)
}

func TestCheckDenied(t *testing.T) {
	router := newTestRouter(t, 2, 0.1)

	postCheck(t, router, `{"client_id":"user-1"}`)
	postCheck(t, router, `{"client_id":"user-1"}`)
	rr := postCheck(t, router, `{"client_id":"user-1"}`)

	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))

	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Allowed)
	assert.GreaterOrEqual(t, resp.RetryAfter, int64(1))
	assert.NotZero(t, resp.ResetAt)

	// Other clients are unaffected.
	rr = postCheck(t, router, `{"client_id":"user-2"}`)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestCheckCost(t *testing.T) {
	router := newTestRouter(t, 10, 1)

	rr := postCheck(t, router, `{"client_id":"batch","cost":10}`)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = postCheck(t, router, `{"client_id":"batch"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
}

func TestCheckBadRequests(t *testing.T) {
	router := newTestRouter(t, 5, 1)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"client_id":`},
		{name: "missing client_id", body: `{}`},
		{name: "empty client_id", body: `{"client_id":""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postCheck(t, router, tt.body)
			require.Equal(t, http.StatusBadRequest, rr.Code)

			var body errorBody
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestCheckMethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, 5, 1)

	req := httptest.NewRequest("GET", "/v1/check", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, 5, 1)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestRequestIDEchoed(t *testing.T) {
	router := newTestRouter(t, 5, 1)

	req := httptest.NewRequest("GET", "/healthz", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"), "generated when absent")

	req = httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-abc")
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	assert.Equal(t, "req-abc", rr.Header().Get("X-Request-ID"))
}
