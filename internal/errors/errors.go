// Package errors defines structured error types shared by the stores and the API.
package errors

import (
	"fmt"
	"net/http"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrMissingField is returned when a required field is missing
	ErrMissingField ErrorCode = "MISSING_FIELD"

	// ErrNotFound is returned when a resource is not found
	ErrNotFound ErrorCode = "NOT_FOUND"

	// ErrStorage is returned when a filesystem read/write/copy fails
	ErrStorage ErrorCode = "STORAGE_ERROR"
	// ErrSerialization is returned when encoding a table snapshot fails
	ErrSerialization ErrorCode = "SERIALIZATION_FAILED"
	// ErrTablePoisoned is returned on every access to a table after a writer
	// failed mid-mutation. The table stays poisoned until process restart.
	ErrTablePoisoned ErrorCode = "TABLE_POISONED"

	// ErrInternal is returned when an unexpected server error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
	// ErrRateLimited is returned when a client exceeds its request budget
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrUnauthenticated is returned when no valid identity can be resolved
	ErrUnauthenticated ErrorCode = "UNAUTHENTICATED"
	// ErrUnauthorized is returned when an identity lacks the required privilege
	ErrUnauthorized ErrorCode = "UNAUTHORIZED"
)

// ErrorWithStatus is an error that includes an HTTP status code and error code.
type ErrorWithStatus interface {
	Error() string
	StatusCode() int
	Code() ErrorCode
	Details() map[string]any
}

// APIError is a concrete error type with status code, code, and optional details.
type APIError struct {
	statusCode int
	code       ErrorCode
	message    string
	details    map[string]any
	wrappedErr error
}

// NewAPIError creates a new APIError with the given status code and message.
func NewAPIError(statusCode int, code ErrorCode, message string) *APIError {
	return &APIError{
		statusCode: statusCode,
		code:       code,
		message:    message,
		details:    make(map[string]any),
	}
}

// WithDetail adds a single detail to the error.
func (e *APIError) WithDetail(key string, value any) *APIError {
	if e.details == nil {
		e.details = make(map[string]any)
	}
	e.details[key] = value
	return e
}

// Wrap wraps an underlying error.
func (e *APIError) Wrap(err error) *APIError {
	e.wrappedErr = err
	return e
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.wrappedErr != nil {
		return fmt.Sprintf("%s: %v", e.message, e.wrappedErr)
	}
	return e.message
}

// StatusCode returns the HTTP status code.
func (e *APIError) StatusCode() int {
	return e.statusCode
}

// Code returns the error code.
func (e *APIError) Code() ErrorCode {
	return e.code
}

// Details returns additional error details.
func (e *APIError) Details() map[string]any {
	return e.details
}

// Unwrap returns the wrapped error if any.
func (e *APIError) Unwrap() error {
	return e.wrappedErr
}

// Predefined error constructors for common cases

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// MissingField creates a 400 Bad Request error for a missing field.
func MissingField(fieldName string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrMissingField, fmt.Sprintf("Missing required field: %s", fieldName))
}

// RateLimited creates a 429 error for a client that exhausted its request
// budget.
func RateLimited(retryAfterSeconds int) *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrRateLimited, "Too many requests").
		WithDetail("retry_after_seconds", retryAfterSeconds)
}

// Unauthenticated creates a 401 error. Middleware treats it as a fallthrough
// outcome for routes that accept anonymous requests.
func Unauthenticated() *APIError {
	return NewAPIError(http.StatusUnauthorized, ErrUnauthenticated, "Authentication required")
}

// Unauthorized creates a 403 error for authenticated but unprivileged callers.
func Unauthorized() *APIError {
	return NewAPIError(http.StatusForbidden, ErrUnauthorized, "Insufficient privileges")
}

// Storage creates a 500 error for a filesystem failure. Never retried.
func Storage(message string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrStorage, message).Wrap(err)
}

// Serialization creates a 500 error for an encoding failure.
func Serialization(message string, err error) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrSerialization, message).Wrap(err)
}

// TablePoisoned creates a 503 error for a table whose prior writer failed
// mid-mutation. Fatal for the table, not for the process.
func TablePoisoned(table string) *APIError {
	return NewAPIError(http.StatusServiceUnavailable, ErrTablePoisoned, fmt.Sprintf("table %s is poisoned", table))
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// InternalWithError creates a 500 error wrapping an underlying error.
func InternalWithError(message string, err error) *APIError {
	return Internal(message).Wrap(err)
}
