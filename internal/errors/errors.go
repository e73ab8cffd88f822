// Package errors provides the typed error taxonomy used across allocation runs.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeConfig covers dependency violations, missing drivers and empty
	// ratio denominators. These abort the pipeline.
	TypeConfig Type = "CONFIG_ERROR"

	// TypeValidation indicates a rejected write or malformed input
	TypeValidation Type = "VALIDATION_ERROR"

	// TypeNotFound indicates a missing catalog entry or run
	TypeNotFound Type = "NOT_FOUND"

	// TypeCancelled indicates the run context ended before a stage started
	TypeCancelled Type = "CANCELLED"

	// TypeStorage indicates a persistence failure
	TypeStorage Type = "STORAGE_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Detail returns the message without the type prefix.
func (e *Error) Detail() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{Type: errType, Message: message}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{Type: errType, Message: message, Cause: cause}
}

// IsType reports whether any error in err's chain is a *Error of type t.
func IsType(err error, t Type) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// Detail strips the type prefix from typed errors for user-facing messages.
func Detail(err error) string {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Detail()
	}
	return err.Error()
}

// Config creates a configuration error
func Config(format string, args ...interface{}) *Error {
	return Newf(TypeConfig, format, args...)
}

// Validation creates a validation error
func Validation(message string, cause error) *Error {
	return Wrap(TypeValidation, message, cause)
}

// NotFound creates a not found error
func NotFound(kind, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", kind, identifier)
}

// Storage creates a storage error
func Storage(message string, cause error) *Error {
	return Wrap(TypeStorage, message, cause)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
