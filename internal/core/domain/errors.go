// Package domain defines the core domain models for the autosave engine.
package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "AS-TICK-4001")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support. Two domain errors match when their
// codes match, regardless of details or cause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Autosave Errors
// ============================================================================

var (
	// ErrInvalidTick indicates the autosave submission failed validation.
	// Nothing is persisted and the caller must not cache the request.
	ErrInvalidTick = NewDomainError("AS-TICK-4001", "invalid autosave tick")

	// ErrSnapshotNotFound indicates no snapshot matched the requested scope.
	ErrSnapshotNotFound = NewDomainError("AS-SNAP-4040", "autosaved state not found")

	// ErrSnapshotValidation indicates a snapshot is missing identity fields.
	ErrSnapshotValidation = NewDomainError("AS-SNAP-4001", "snapshot validation failed")

	// ErrCodecError indicates stored bytes could not be decoded (corruption)
	// or a value could not be encoded.
	ErrCodecError = NewDomainError("AS-CODEC-5002", "malformed autosave data")

	// ErrNotifierError indicates the change notification could not be delivered.
	ErrNotifierError = NewDomainError("AS-NTFY-5020", "change notification failed")
)

// ============================================================================
// System Errors (SYS)
// ============================================================================

var (
	// ErrInternalServer indicates an internal server error.
	ErrInternalServer = NewDomainError("AS-SYS-5000", "internal server error")

	// ErrStorageError indicates a storage layer error.
	ErrStorageError = NewDomainError("AS-SYS-5001", "storage error")

	// ErrServiceUnavailable indicates the service is temporarily unavailable.
	ErrServiceUnavailable = NewDomainError("AS-SYS-5030", "service unavailable")

	// ErrBadRequest indicates a malformed request.
	ErrBadRequest = NewDomainError("AS-SYS-4000", "bad request")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = NewDomainError("AS-SYS-4290", "too many requests")
)

// ============================================================================
// Argument Errors (ARG)
// ============================================================================

var (
	// ErrInvalidArgument indicates an invalid argument.
	ErrInvalidArgument = NewDomainError("AS-ARG-1001", "invalid argument")

	// ErrMissingArgument indicates a required argument is missing.
	ErrMissingArgument = NewDomainError("AS-ARG-1002", "missing required argument")
)

// ============================================================================
// Admin Errors (ADMIN)
// ============================================================================

var (
	// ErrAdminIPNotAllowed indicates the admin IP is not in allowlist.
	ErrAdminIPNotAllowed = NewDomainError("AS-ADMIN-4031", "admin ip not allowed")

	// ErrAdminOperationUnsupported indicates the backend cannot run the
	// requested maintenance operation.
	ErrAdminOperationUnsupported = NewDomainError("AS-ADMIN-4001", "operation not supported by storage backend")
)

// IsStorageClass reports whether err is a storage-class failure: a storage
// error or a codec error on stored bytes.
func IsStorageClass(err error) bool {
	return errors.Is(err, ErrStorageError) || errors.Is(err, ErrCodecError)
}
