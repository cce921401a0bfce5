// Package errors provides standardized error handling for the payment assistant.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Rejected before any network call.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Recipient/account absent in every registry. A normal outcome, not a failure.
	ErrCodeRecipientNotFound ErrorCode = "RECIPIENT_NOT_FOUND"

	// Backend unreachable or the request never completed.
	ErrCodeTransportError ErrorCode = "TRANSPORT_ERROR"

	// Backend reached but rejected the operation (e.g. insufficient funds).
	ErrCodeBusinessRejected ErrorCode = "BUSINESS_REJECTED"

	// Classification backend returned something that is not the agreed envelope.
	ErrCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	ErrCodeStoreAccountUnavailable ErrorCode = "STORE_ACCOUNT_UNAVAILABLE"
	ErrCodeAuthenticationFailed    ErrorCode = "AUTHENTICATION_FAILED"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewValidationError creates a non-retryable validation error. It must be
// raised before any network call is made.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidationFailed,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecipientNotFoundError creates a non-retryable not-found outcome for a
// recipient token that matched no registry entry.
func NewRecipientNotFoundError(token string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientNotFound,
		Message:   "Recipient not found in any registry",
		Details:   fmt.Sprintf("token: %s", token),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewTransportError creates a retryable transport error for an unreachable
// backend.
func NewTransportError(service string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeTransportError,
		Message:   fmt.Sprintf("Service '%s' unreachable", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBusinessRejectedError creates a non-retryable business failure carrying
// the backend-supplied reason verbatim.
func NewBusinessRejectedError(service, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBusinessRejected,
		Message:   reason,
		Details:   fmt.Sprintf("service: %s", service),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedResponseError creates a non-retryable error for an unparseable
// classification payload. Absorbed locally, never shown to the user.
func NewMalformedResponseError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedResponse,
		Message:   "Classification backend returned an unparseable payload",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewStoreAccountUnavailableError is raised when a purchase cannot proceed
// because the store account could not be resolved.
func NewStoreAccountUnavailableError(err error) *StandardError {
	e := &StandardError{
		Code:      ErrCodeStoreAccountUnavailable,
		Message:   "Store account not available",
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		e.Details = err.Error()
	}
	return e
}

// NewAuthenticationFailedError creates a non-retryable login failure.
func NewAuthenticationFailedError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAuthenticationFailed,
		Message:   "Authentication failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// IsNotFound reports whether err is a recipient-not-found outcome.
func IsNotFound(err error) bool {
	se, ok := err.(*StandardError)
	return ok && se.Code == ErrCodeRecipientNotFound
}

// IsTransport reports whether err is a transport-level failure.
func IsTransport(err error) bool {
	se, ok := err.(*StandardError)
	return ok && se.Code == ErrCodeTransportError
}

// GetErrorCategory returns the category of the error code, used to pick a log
// severity: transport failures are operational noise, business rejections are
// expected domain outcomes.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "NOT_FOUND") || strings.Contains(codeStr, "UNAVAILABLE"):
		return "LOOKUP"
	case strings.Contains(codeStr, "TRANSPORT"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "BUSINESS"):
		return "BUSINESS"
	case strings.Contains(codeStr, "MALFORMED"):
		return "AI"
	case strings.Contains(codeStr, "AUTH"):
		return "AUTH"
	default:
		return "OTHER"
	}
}
