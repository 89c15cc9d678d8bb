package engine

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorClass represents the classification of an error. Classes describe why
// an invocation failed; nothing in this codebase retries automatically, so
// the class is informational for callers and for metrics.
type ErrorClass string

const (
	// ErrorClassTransient indicates a temporary failure such as a network
	// timeout or a 5xx from the provider.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassThrottled indicates API rate limiting (HTTP 429).
	ErrorClassThrottled ErrorClass = "throttled"

	// ErrorClassPermanent indicates a non-recoverable error: invalid
	// parameters, authentication failure, or a provider-side rejection.
	ErrorClassPermanent ErrorClass = "permanent"
)

// Common error codes.
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeAPIError     = "API_ERROR"
	ErrCodeConflict     = "CONFLICT"
)

// Error is a classified error with resource and operation context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource identifies the resource involved, if applicable.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" {
		msg += fmt.Sprintf(" (resource=%s)", e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithResource adds resource context to an error.
func (e *Error) WithResource(resource string) *Error {
	e.Resource = resource
	return e
}

// WithOperation adds operation context to an error.
func (e *Error) WithOperation(operation string) *Error {
	e.Operation = operation
	return e
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewThrottledError creates a new throttled error.
func NewThrottledError(message string, err error) *Error {
	return &Error{Class: ErrorClassThrottled, Code: ErrCodeRateLimited, Message: message, Err: err}
}

// NewPermanentError creates a new permanent error.
func NewPermanentError(message string, err error) *Error {
	return &Error{Class: ErrorClassPermanent, Message: message, Err: err}
}

// NewValidationError creates a permanent error for parameter validation
// failures. Validation errors are raised before any network call is made.
func NewValidationError(message string) *Error {
	return &Error{Class: ErrorClassPermanent, Code: ErrCodeValidation, Message: message}
}

// NewTimeoutError creates the distinct error returned when a poll loop
// exhausts its wait budget. The remote resource is left in whatever state
// the provider put it in.
func NewTimeoutError(message string) *Error {
	return &Error{Class: ErrorClassTransient, Code: ErrCodeTimeout, Message: message}
}

// FromHTTPStatus classifies a non-2xx provider response. The message is the
// provider's own error message when one was returned.
func FromHTTPStatus(status int, message string, err error) *Error {
	e := &Error{Message: message, Err: err}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Class = ErrorClassPermanent
		e.Code = ErrCodeUnauthorized
	case status == http.StatusNotFound:
		e.Class = ErrorClassPermanent
		e.Code = ErrCodeNotFound
	case status == http.StatusConflict:
		e.Class = ErrorClassPermanent
		e.Code = ErrCodeConflict
	case status == http.StatusTooManyRequests:
		e.Class = ErrorClassThrottled
		e.Code = ErrCodeRateLimited
	case status >= 500:
		e.Class = ErrorClassTransient
		e.Code = ErrCodeAPIError
	default:
		e.Class = ErrorClassPermanent
		e.Code = ErrCodeAPIError
	}
	return e
}

// IsTimeout returns true if the error is a poll timeout.
func IsTimeout(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeTimeout
	}
	return false
}

// IsValidation returns true if the error is a parameter validation failure.
func IsValidation(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeValidation
	}
	return false
}

// IsNotFound returns true if the error represents a missing remote resource.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeNotFound
	}
	return false
}

// IsUnauthorized returns true for authentication or permission failures.
func IsUnauthorized(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeUnauthorized
	}
	return false
}
