package http_test

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/averycrane/gatehouse/internal/models"
	pkghttp "github.com/averycrane/gatehouse/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, body []byte) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	return resp
}

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteError(w, 400, "test_error", "test message")

	assert.Equal(t, 400, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeError(t, w.Body.Bytes())
	assert.Equal(t, "test_error", resp.Error)
	assert.Equal(t, "test message", resp.Message)
}

func TestWriteServiceError_KindMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", models.ErrTokenExpired, 400, "token_expired"},
		{"auth failed", models.ErrInvalidCredentials, 401, "invalid_credentials"},
		{"forbidden", models.ErrForbidden, 403, "forbidden"},
		{"not found", models.ErrNotFound, 404, "not_found"},
		{"conflict", models.ErrEmailExists, 409, "email_exists"},
		{"rate limited", models.ErrRateLimited, 429, "rate_limited"},
		{"internal", models.ErrInternalServer, 500, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			pkghttp.WriteServiceError(w, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeError(t, w.Body.Bytes())
			assert.Equal(t, tt.wantCode, resp.Error)
		})
	}
}

func TestWriteServiceError_UntypedError(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteServiceError(w, errors.New("pq: connection refused"))

	// Raw errors never leak to the client
	assert.Equal(t, 500, w.Code)
	resp := decodeError(t, w.Body.Bytes())
	assert.Equal(t, "internal_error", resp.Error)
	assert.NotContains(t, resp.Message, "pq:")
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()

	pkghttp.WriteJSON(w, 201, map[string]string{"id": "user_123"})

	assert.Equal(t, 201, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id":"user_123"}`, w.Body.String())
}
