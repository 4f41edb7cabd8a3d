// Package shared contains common domain errors and events used across the
// attendance and proximity domains. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
)

// Base domain errors that can be used for error checking with errors.Is().
var (
	// Entity errors
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	// Validation errors
	ErrValidation   = errors.New("validation error")
	ErrInvalidID    = errors.New("invalid ID")
	ErrInvalidInput = errors.New("invalid input")
	ErrEmptyValue   = errors.New("value cannot be empty")

	// State errors
	ErrInvalidState = errors.New("invalid state")

	// Authorization errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Capability errors
	ErrCapability = errors.New("capability unavailable")
	ErrTimeout    = errors.New("operation timeout")

	// Storage errors
	ErrStorage            = errors.New("storage error")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g., "attendance", "proximity", "identity"
	Op      string // Operation that failed, e.g., "Create", "Update"
	Kind    error  // Base error type for errors.Is() checking
	Message string // Human-readable message
	Err     error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Detection errors. All of them are recoverable by the person retrying.
var (
	ErrPermissionDenied     = NewDomainError("proximity", "Detect", ErrCapability, "required permissions were not granted")
	ErrBluetoothUnavailable = NewDomainError("proximity", "Detect", ErrCapability, "bluetooth is powered off or unavailable")
	ErrDetectionTimeout     = NewDomainError("proximity", "Detect", ErrTimeout, "no matching signal before the deadline")
)

// Ledger errors
var (
	ErrSessionNotFound     = NewDomainError("attendance", "FindSession", ErrNotFound, "session not found")
	ErrSessionNameRequired = NewDomainError("attendance", "CreateSession", ErrEmptyValue, "session name is required")
	ErrOwnerRequired       = NewDomainError("attendance", "CreateSession", ErrInvalidID, "session owner is required")
	ErrPersonRequired      = NewDomainError("attendance", "MarkAttendance", ErrInvalidID, "person id is required")
	ErrInvalidMethod       = NewDomainError("attendance", "MarkAttendance", ErrInvalidInput, "unknown attendance method")
	ErrDurableWriteFailure = NewDomainError("attendance", "Persist", ErrStorage, "durable write failed")
	ErrRehydrateFailure    = NewDomainError("attendance", "Rehydrate", ErrStorage, "could not load ledger state")
)

// Identity errors
var (
	ErrPersonNotFound      = NewDomainError("identity", "Lookup", ErrNotFound, "person not found")
	ErrInvalidCredentials  = NewDomainError("identity", "Authenticate", ErrUnauthorized, "invalid username or password")
	ErrPersonAlreadyExists = NewDomainError("identity", "Register", ErrAlreadyExists, "username already taken")
)

// IsNotFound checks if the error is a "not found" error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAlreadyExists checks if the error is an "already exists" error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsValidation checks if the error is a validation error.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptyValue)
}

// IsRecoverable reports whether a person can fix the condition and retry
// (grant permissions, enable bluetooth, try again).
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrCapability) || errors.Is(err, ErrTimeout)
}

// IsFatal reports whether the operation failed in a way retrying the same
// request will not fix without operator action.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStorage)
}
