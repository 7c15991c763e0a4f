// Package errors provides standardized error handling for the portal workflow engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeNotFound          ErrorCode = "NOT_FOUND"
	ErrCodeInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_ERROR"
	ErrCodeStorageFailed     ErrorCode = "STORAGE_ERROR"
	ErrCodeSideEffectFailed  ErrorCode = "SIDE_EFFECT_ERROR"
	ErrCodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden         ErrorCode = "FORBIDDEN"
)

// PortalError represents a structured application error.
type PortalError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *PortalError) Error() string {
	return fmt.Sprintf("PortalError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewNotFoundError creates a non-retryable error for an unknown resource id.
func NewNotFoundError(resourceType, resourceID string) *PortalError {
	return &PortalError{
		Code:      ErrCodeNotFound,
		Message:   fmt.Sprintf("%s not found", resourceType),
		Details:   fmt.Sprintf("id: %s", resourceID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable error for an illegal status change.
func NewInvalidTransitionError(from, to string) *PortalError {
	return &PortalError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Status transition not permitted",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewValidationError creates a non-retryable error for a missing or malformed field.
func NewValidationError(details string) *PortalError {
	return &PortalError{
		Code:      ErrCodeValidationFailed,
		Message:   "Request validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStorageError creates a retryable error for a failed primary write or read.
func NewStorageError(op string, err error) *PortalError {
	return &PortalError{
		Code:      ErrCodeStorageFailed,
		Message:   "Record store operation failed",
		Details:   fmt.Sprintf("op: %s, error: %s", op, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewSideEffectError creates an error for a failed post-commit hook. It is logged
// internally and never surfaced to callers of the primary operation.
func NewSideEffectError(hook string, err error) *PortalError {
	return &PortalError{
		Code:      ErrCodeSideEffectFailed,
		Message:   "Post-commit side effect failed",
		Details:   fmt.Sprintf("hook: %s, error: %s", hook, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewUnauthorizedError(details string) *PortalError {
	return &PortalError{
		Code:      ErrCodeUnauthorized,
		Message:   "Authentication required",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewForbiddenError(details string) *PortalError {
	return &PortalError{
		Code:      ErrCodeForbidden,
		Message:   "Not permitted for this actor",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// CodeOf returns the portal error code of err, or empty if err is not a PortalError.
func CodeOf(err error) ErrorCode {
	var pe *PortalError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// IsCode reports whether err carries the given portal error code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// HTTPStatus maps an error code to the HTTP status the API surface returns.
func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeInvalidTransition:
		return http.StatusConflict
	case ErrCodeValidationFailed:
		return http.StatusBadRequest
	case ErrCodeStorageFailed:
		return http.StatusServiceUnavailable
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
