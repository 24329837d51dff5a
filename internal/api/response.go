package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	apperrors "einvoice-analytics/internal/errors"
)

// ErrorResponse is the envelope for failed requests
type ErrorResponse struct {
	Error     ErrorDetails `json:"error"`
	Timestamp string       `json:"timestamp"`
}

// ErrorDetails carries the machine-readable error code alongside the message
type ErrorDetails struct {
	Code      apperrors.ErrorCode `json:"code"`
	Message   string              `json:"message"`
	Component string              `json:"component,omitempty"`
}

// SuccessResponse is the envelope for successful requests
type SuccessResponse struct {
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// writeSuccess writes data wrapped in the standard envelope
func writeSuccess(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := SuccessResponse{
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// writeError maps a typed analytics error onto an HTTP status and writes the
// error envelope. Untyped errors become 500s.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	details := ErrorDetails{
		Code:    apperrors.ErrorCodeInternal,
		Message: err.Error(),
	}
	var ae *apperrors.AnalyticsError
	if errors.As(err, &ae) {
		status = ae.HTTPStatus()
		details.Code = ae.Code
		details.Message = ae.Message
		details.Component = ae.Component
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	response := ErrorResponse{
		Error:     details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if encodeErr := json.NewEncoder(w).Encode(response); encodeErr != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// writeValidationError reports a request-shape problem without constructing
// a component error upstream
func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, apperrors.NewValidation("api", message))
}
