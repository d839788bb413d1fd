package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(handler http.Handler, remoteAddr, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", target, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestRateLimitByIP_EnforcesLimit(t *testing.T) {
	handler := RateLimitByIP(3, time.Minute)(okHandler())

	for i := 0; i < 3; i++ {
		w := doRequest(handler, "198.51.100.7:1234", "/auth/login")
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
	}

	w := doRequest(handler, "198.51.100.7:1234", "/auth/login")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "rate_limited", body.Error)
}

func TestRateLimitByIP_SeparateClients(t *testing.T) {
	handler := RateLimitByIP(1, time.Minute)(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(handler, "198.51.100.7:1234", "/auth/login").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, "198.51.100.7:1234", "/auth/login").Code)

	// A different client keeps its own budget
	assert.Equal(t, http.StatusOK, doRequest(handler, "203.0.113.9:1234", "/auth/login").Code)
}

func TestRateLimitByEndpoint_IndependentBudgets(t *testing.T) {
	handler := RateLimitByEndpoint(1, time.Minute)(okHandler())

	assert.Equal(t, http.StatusOK, doRequest(handler, "198.51.100.7:1234", "/auth/login").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(handler, "198.51.100.7:1234", "/auth/login").Code)

	// Same IP against a different path is counted separately
	assert.Equal(t, http.StatusOK, doRequest(handler, "198.51.100.7:1234", "/auth/register").Code)
}
