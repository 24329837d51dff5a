package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAnalyticsError_Error(t *testing.T) {
	err := New(ErrorCodeNotFound, "kpi", "kpi \"x\" not found")
	assert.Contains(t, err.Error(), "NOT_FOUND")
	assert.Contains(t, err.Error(), "not found")

	wrapped := Wrap(ErrorCodeComputationFailed, "kpi", "division failed", errors.New("divide by zero"))
	assert.Contains(t, wrapped.Error(), "divide by zero")
}

func TestAnalyticsError_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewDependencyUnavailable("cache", "redis", cause)
	assert.True(t, errors.Is(err, cause))
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrorCodeNoData, CodeOf(NewNoData("metrics", "no values in range")))
	assert.Equal(t, ErrorCodeInternal, CodeOf(errors.New("plain")))

	// Code survives fmt wrapping.
	wrapped := fmt.Errorf("aggregate: %w", NewNotFound("metrics", "metric", "m1"))
	assert.Equal(t, ErrorCodeNotFound, CodeOf(wrapped))
	assert.True(t, IsNotFound(wrapped))
}

func TestRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewDependencyUnavailable("cache", "redis", nil)))
	assert.False(t, IsRetryable(NewValidation("kpi", "bad input")))
	assert.False(t, IsRetryable(errors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrorCodeNotFound, http.StatusNotFound},
		{ErrorCodeNoData, http.StatusNotFound},
		{ErrorCodeValidation, http.StatusBadRequest},
		{ErrorCodeInsufficientData, http.StatusBadRequest},
		{ErrorCodeDependencyUnavailable, http.StatusServiceUnavailable},
		{ErrorCodeConflict, http.StatusConflict},
		{ErrorCodeInternal, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, "", "x").HTTPStatus())
		})
	}
}
