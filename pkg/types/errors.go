package types

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors produced by the
// access-control core. Callers branch on the type, not on message text:
// a network failure is retryable, bad credentials mean re-prompt, an
// expired session forces logout.
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "validation"
	ErrorTypeAuthentication ErrorType = "authentication"
	ErrorTypeNetwork        ErrorType = "network"
	ErrorTypeConflict       ErrorType = "conflict"
	ErrorTypeSessionExpired ErrorType = "session_expired"
	ErrorTypeForbidden      ErrorType = "forbidden"
	ErrorTypeInternal       ErrorType = "internal"
)

// AccessError is the structured error used across the core.
type AccessError struct {
	Type    ErrorType              `json:"type"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *AccessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *AccessError) Unwrap() error {
	return e.Cause
}

// NewValidationError creates a new validation error.
func NewValidationError(code, message string) *AccessError {
	return &AccessError{Type: ErrorTypeValidation, Code: code, Message: message}
}

// NewAuthenticationError creates a new authentication error.
func NewAuthenticationError(code, message string) *AccessError {
	return &AccessError{Type: ErrorTypeAuthentication, Code: code, Message: message}
}

// NewNetworkError creates a new network error wrapping the transport failure.
func NewNetworkError(code, message string, cause error) *AccessError {
	return &AccessError{Type: ErrorTypeNetwork, Code: code, Message: message, Cause: cause}
}

// NewConflictError creates a new conflict error.
func NewConflictError(code, message string) *AccessError {
	return &AccessError{Type: ErrorTypeConflict, Code: code, Message: message}
}

// NewSessionExpiredError creates the error that forces a logout.
func NewSessionExpiredError(message string) *AccessError {
	return &AccessError{Type: ErrorTypeSessionExpired, Code: ErrCodeSessionExpired, Message: message}
}

// NewForbiddenError creates a new authorization denial error.
func NewForbiddenError(code, message string) *AccessError {
	return &AccessError{Type: ErrorTypeForbidden, Code: code, Message: message}
}

// NewInternalError creates a new internal error.
func NewInternalError(code, message string, cause error) *AccessError {
	return &AccessError{Type: ErrorTypeInternal, Code: code, Message: message, Cause: cause}
}

// WithDetails attaches structured context to an error.
func (e *AccessError) WithDetails(details map[string]interface{}) *AccessError {
	e.Details = details
	return e
}

// IsType reports whether err (or anything it wraps) is an AccessError of
// the given type.
func IsType(err error, t ErrorType) bool {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae.Type == t
	}
	return false
}

// AsAccessError extracts an AccessError from a generic error.
func AsAccessError(err error) (*AccessError, bool) {
	var ae *AccessError
	ok := errors.As(err, &ae)
	return ae, ok
}

// Common error codes.
const (
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeSessionExpired     = "SESSION_EXPIRED"
	ErrCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	ErrCodeNetworkFailure     = "NETWORK_FAILURE"
	ErrCodeReasonTooShort     = "REASON_TOO_SHORT"
	ErrCodeOverrideActive     = "OVERRIDE_ALREADY_ACTIVE"
	ErrCodeInsufficientRole   = "INSUFFICIENT_ROLE"
	ErrCodeUnknownModule      = "UNKNOWN_MODULE"
	ErrCodeUnknownLevel       = "UNKNOWN_ACCESS_LEVEL"
	ErrCodeUnknownRole        = "UNKNOWN_ROLE"
	ErrCodeBackendFailure     = "BACKEND_FAILURE"
)
