// Package errors defines structured error types for the API.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/l3viathan/apy4i/internal/jsonldb"
)

// ErrorCode defines specific error types for the API.
type ErrorCode string

const (
	// ErrValidationFailed is returned when input data fails validation
	ErrValidationFailed ErrorCode = "VALIDATION_FAILED"
	// ErrNotFound is returned when a resource is not found
	ErrNotFound ErrorCode = "NOT_FOUND"
	// ErrRateLimited is returned when a client sends too many requests
	ErrRateLimited ErrorCode = "RATE_LIMITED"
	// ErrStorageError is returned when a storage operation fails
	ErrStorageError ErrorCode = "STORAGE_ERROR"
	// ErrInternal is returned when an unexpected server error occurs
	ErrInternal ErrorCode = "INTERNAL_ERROR"
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

// NotFound creates a 404 Not Found error.
func NotFound(resource string) *APIError {
	return NewAPIError(http.StatusNotFound, ErrNotFound, fmt.Sprintf("%s not found", resource))
}

// BadRequest creates a 400 Bad Request error.
func BadRequest(message string) *APIError {
	return NewAPIError(http.StatusBadRequest, ErrValidationFailed, message)
}

// TooManyRequests creates a 429 error.
func TooManyRequests() *APIError {
	return NewAPIError(http.StatusTooManyRequests, ErrRateLimited, "Too many requests")
}

// Internal returns a 500 Internal Server Error.
func Internal(message string) *APIError {
	return NewAPIError(http.StatusInternalServerError, ErrInternal, message)
}

// FromStorage maps a storage error to an API error.
//
// Unknown identifiers are 404s. Malformed keys and blob modes chosen by the
// client are 400s. Everything else, including corrupt documents, unknown
// modes in the blob index and missing blob payloads, is a storage fault.
func FromStorage(err error) *APIError {
	switch {
	case errors.Is(err, jsonldb.ErrBlobNotFound):
		return NotFound("blob").Wrap(err)
	case errors.Is(err, jsonldb.ErrInvalidKey):
		return BadRequest("invalid key").Wrap(err)
	case errors.Is(err, jsonldb.ErrInvalidMode), errors.Is(err, jsonldb.ErrModeMismatch):
		return BadRequest("invalid blob mode").Wrap(err)
	default:
		return NewAPIError(http.StatusInternalServerError, ErrStorageError, "storage failure").Wrap(err)
	}
}
