package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies an error for recovery and reporting
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindTimeout    ErrorKind = "timeout"
	KindConnection ErrorKind = "connection"
	KindMemory     ErrorKind = "memory"
	KindRateLimit  ErrorKind = "rate_limit"
	KindInternal   ErrorKind = "internal"
	KindExternal   ErrorKind = "external"
	KindUnknown    ErrorKind = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Kind      ErrorKind         `json:"kind"`
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Cause     error             `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new application error
func New(kind ErrorKind, code, message string) *AppError {
	return &AppError{
		Kind:      kind,
		Code:      code,
		Message:   message,
		Details:   make(map[string]string),
		Timestamp: time.Now(),
	}
}

// WithCause adds a cause to the error
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetail adds a detail to the error
func (e *AppError) WithDetail(key, value string) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithRequestID adds a request ID to the error
func (e *AppError) WithRequestID(requestID string) *AppError {
	e.RequestID = requestID
	return e
}

// Common error constructors
func NewValidationError(message string) *AppError {
	return New(KindValidation, "VALIDATION_ERROR", message)
}

func NewNotFoundError(resource string) *AppError {
	return New(KindNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

func NewTimeoutError(operation string) *AppError {
	return New(KindTimeout, "TIMEOUT", fmt.Sprintf("%s timed out", operation))
}

func NewConnectionError(message string) *AppError {
	return New(KindConnection, "CONNECTION_ERROR", message)
}

func NewMemoryError(message string) *AppError {
	return New(KindMemory, "MEMORY_ERROR", message)
}

func NewRateLimitError(message string) *AppError {
	return New(KindRateLimit, "RATE_LIMIT_EXCEEDED", message)
}

func NewInternalError(message string) *AppError {
	return New(KindInternal, "INTERNAL_ERROR", message)
}

func NewExternalError(service, message string) *AppError {
	return New(KindExternal, "EXTERNAL_SERVICE_ERROR", message).
		WithDetail("service", service)
}

// As finds the first error in err's chain that matches target.
// It mirrors the standard library so callers need only one errors import.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// KindOf returns the kind of the error, unwrapping as needed.
// Errors without an AppError in their chain are KindUnknown.
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsKind checks if the error is of a specific kind
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// GetCode returns the error code if it's an AppError
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN_ERROR"
}
