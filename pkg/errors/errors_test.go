package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelsMatchThroughWrapping(t *testing.T) {
	err := fmt.Errorf("admit login: %w", ErrDeviceLimitExceeded)

	assert.True(t, errors.Is(err, ErrDeviceLimitExceeded))
	assert.False(t, errors.Is(err, ErrDeviceBlocked))
	assert.True(t, IsCode(err, ErrCodeDeviceLimitExceeded))
	assert.Equal(t, ErrCodeDeviceLimitExceeded, GetCode(err))
	assert.Equal(t, ErrCodeInternal, GetCode(errors.New("plain")))
}

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "nothing"))

	cause := errors.New("connection refused")
	err := Wrap(cause, ErrCodeInternal, "load settings")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "[INTERNAL_ERROR] load settings: connection refused", err.Error())
}

func TestWithDetailCopies(t *testing.T) {
	withDetail := ErrInvalidPolicyValue.WithDetail("value", 3)

	assert.Nil(t, ErrInvalidPolicyValue.Details)
	assert.Equal(t, 3, withDetail.Details["value"])
	assert.True(t, errors.Is(withDetail, ErrInvalidPolicyValue))
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := map[ErrorCode]int{
		ErrCodeInvalidCredentials:      http.StatusUnauthorized,
		ErrCodeAccountBlocked:          http.StatusForbidden,
		ErrCodeDeviceBlocked:           http.StatusForbidden,
		ErrCodeDeviceLimitExceeded:     http.StatusForbidden,
		ErrCodeSessionExpired:          http.StatusUnauthorized,
		ErrCodeSessionExpiredElsewhere: http.StatusUnauthorized,
		ErrCodeDeviceSessionInvalid:    http.StatusUnauthorized,
		ErrCodeInvalidPolicyValue:      http.StatusBadRequest,
		ErrCodeInvalidInput:            http.StatusBadRequest,
		ErrCodeNotFound:                http.StatusNotFound,
		ErrCodeRateLimitExceeded:       http.StatusTooManyRequests,
		ErrCodeInternal:                http.StatusInternalServerError,
	}
	for code, status := range tests {
		assert.Equal(t, status, MapErrorCodeToHTTPStatus(code), code)
	}
}

func TestRenderError(t *testing.T) {
	t.Run("structured", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		RenderError(rec, req, fmt.Errorf("login: %w", ErrSessionExpiredElsewhere))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "error", body.Status)
		assert.Equal(t, ErrCodeSessionExpiredElsewhere, body.Code)
		assert.Equal(t, ErrSessionExpiredElsewhere.Message, body.Message)
	})

	t.Run("unstructured hides internals", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		RenderError(rec, req, errors.New("pq: password authentication failed"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "pq:")
		assert.Contains(t, rec.Body.String(), string(ErrCodeInternal))
	})

	t.Run("rate limit detail", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		RenderError(rec, req, RateLimitExceeded("60s"))

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "60s", body.Details["retry_after"])
	})
}
