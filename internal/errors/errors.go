// Package errors provides the typed error taxonomy for the analytics
// services. Compute paths never swallow failures into zero values; they return
// an AnalyticsError whose code distinguishes "no data" (empty, valid) from
// "computation failed" (must propagate) from "dependency unavailable"
// (retryable).
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents semantic error codes for consistent handling
type ErrorCode string

const (
	// ErrorCodeNoData means the query matched nothing; callers may treat the
	// empty result as valid
	ErrorCodeNoData ErrorCode = "NO_DATA"
	// ErrorCodeNotFound means a referenced definition or entity does not exist
	ErrorCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrorCodeValidation means the input failed validation
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	// ErrorCodeComputationFailed means a calculation could not produce a value
	ErrorCodeComputationFailed ErrorCode = "COMPUTATION_FAILED"
	// ErrorCodeInsufficientData means a calculation needs more points than exist
	ErrorCodeInsufficientData ErrorCode = "INSUFFICIENT_DATA"
	// ErrorCodeDependencyUnavailable means a collaborator (cache, bus, AI
	// service) failed; the operation is retryable
	ErrorCodeDependencyUnavailable ErrorCode = "DEPENDENCY_UNAVAILABLE"
	// ErrorCodeTimeout means an operation exceeded its deadline
	ErrorCodeTimeout ErrorCode = "TIMEOUT"
	// ErrorCodeConflict means a sync conflict blocked the operation
	ErrorCodeConflict ErrorCode = "CONFLICT"
	// ErrorCodeInternal is the catch-all for unexpected failures
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// AnalyticsError is the unified error type across the analytics services
type AnalyticsError struct {
	Code      ErrorCode `json:"code"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
	Cause     error     `json:"-"`
}

// Error implements the Go error interface
func (e *AnalyticsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As
func (e *AnalyticsError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the operation may succeed if retried
func (e *AnalyticsError) Retryable() bool {
	return e.Code == ErrorCodeDependencyUnavailable || e.Code == ErrorCodeTimeout
}

// HTTPStatus maps the error code to an HTTP response status
func (e *AnalyticsError) HTTPStatus() int {
	switch e.Code {
	case ErrorCodeNoData, ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeValidation, ErrorCodeInsufficientData:
		return http.StatusBadRequest
	case ErrorCodeDependencyUnavailable, ErrorCodeTimeout:
		return http.StatusServiceUnavailable
	case ErrorCodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New creates an AnalyticsError with the given code
func New(code ErrorCode, component, message string) *AnalyticsError {
	return &AnalyticsError{Code: code, Component: component, Message: message}
}

// Wrap creates an AnalyticsError around a cause
func Wrap(code ErrorCode, component, message string, cause error) *AnalyticsError {
	return &AnalyticsError{Code: code, Component: component, Message: message, Cause: cause}
}

// NewNoData creates a NO_DATA error
func NewNoData(component, message string) *AnalyticsError {
	return New(ErrorCodeNoData, component, message)
}

// NewNotFound creates a NOT_FOUND error
func NewNotFound(component, kind, id string) *AnalyticsError {
	return New(ErrorCodeNotFound, component, fmt.Sprintf("%s %q not found", kind, id))
}

// NewValidation creates a VALIDATION_ERROR
func NewValidation(component, message string) *AnalyticsError {
	return New(ErrorCodeValidation, component, message)
}

// NewComputationFailed creates a COMPUTATION_FAILED error
func NewComputationFailed(component, message string, cause error) *AnalyticsError {
	return Wrap(ErrorCodeComputationFailed, component, message, cause)
}

// NewInsufficientData creates an INSUFFICIENT_DATA error
func NewInsufficientData(component string, need, have int) *AnalyticsError {
	return New(ErrorCodeInsufficientData, component,
		fmt.Sprintf("need at least %d data points, have %d", need, have))
}

// NewDependencyUnavailable creates a DEPENDENCY_UNAVAILABLE error
func NewDependencyUnavailable(component, dependency string, cause error) *AnalyticsError {
	return Wrap(ErrorCodeDependencyUnavailable, component,
		fmt.Sprintf("dependency %s unavailable", dependency), cause)
}

// CodeOf extracts the ErrorCode from any error, defaulting to INTERNAL_ERROR
func CodeOf(err error) ErrorCode {
	var ae *AnalyticsError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ErrorCodeInternal
}

// IsNoData reports whether the error means "query matched nothing"
func IsNoData(err error) bool {
	return CodeOf(err) == ErrorCodeNoData
}

// IsNotFound reports whether the error is a missing definition or entity
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrorCodeNotFound
}

// IsRetryable reports whether the error is worth retrying
func IsRetryable(err error) bool {
	var ae *AnalyticsError
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}
