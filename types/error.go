package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across convtree.
type ErrorCode string

// Upstream (agent) error codes
const (
	ErrGeneration         ErrorCode = "GENERATION_FAILED"
	ErrMalformedOutput    ErrorCode = "MALFORMED_OUTPUT"
	ErrEmptyOutput        ErrorCode = "EMPTY_OUTPUT"
	ErrUpstreamError      ErrorCode = "UPSTREAM_ERROR"
	ErrUpstreamTimeout    ErrorCode = "UPSTREAM_TIMEOUT"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrProviderNotSet     ErrorCode = "PROVIDER_NOT_SET"
	ErrBudgetExceeded     ErrorCode = "BUDGET_EXCEEDED"
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Storage error codes
const (
	ErrPersistence ErrorCode = "PERSISTENCE_FAILED"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Role      Role      `json:"role,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewGenerationError wraps an upstream agent failure.
func NewGenerationError(role Role, cause error) *Error {
	return &Error{
		Code:      ErrGeneration,
		Message:   fmt.Sprintf("%s agent failed to generate", role),
		Retryable: true,
		Role:      role,
		Cause:     cause,
	}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithRole sets the agent role that produced the error.
func (e *Error) WithRole(role Role) *Error {
	e.Role = role
	return e
}

// AsError extracts a *Error from anywhere in err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsGenerationError reports whether err is an agent generation failure.
func IsGenerationError(err error) bool {
	return GetErrorCode(err) == ErrGeneration
}
