package errors

import (
	"errors"
	"fmt"
)

// Contention errors: expected under concurrent load. The operation was not
// performed and is safe to retry, or was already satisfied.
var (
	ErrLockHeld           = errors.New("lock held by another owner")
	ErrDuplicateOperation = errors.New("operation already in progress or completed")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrVersionConflict    = errors.New("optimistic version conflict, retries exhausted")
)

// Business errors: reported to the caller, never retried by the core.
var (
	ErrStockNotFound     = errors.New("stock row not found")
	ErrInsufficientStock = errors.New("insufficient available stock")
	ErrInvalidQuantity   = errors.New("quantity must be positive")
)

// Infrastructure errors: shared store unreachable or timed out.
// Callers decide retry policy.
var (
	ErrStoreUnavailable = errors.New("shared store unavailable")
)

// Outbox errors
var (
	ErrUnknownEventType = errors.New("no handler registered for event type")
)

// DomainError wraps errors with a stable machine-readable code.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// IsContention reports whether err is one of the expected contention
// outcomes (lock held, duplicate, over capacity, CAS conflict).
func IsContention(err error) bool {
	return errors.Is(err, ErrLockHeld) ||
		errors.Is(err, ErrDuplicateOperation) ||
		errors.Is(err, ErrRateLimitExceeded) ||
		errors.Is(err, ErrVersionConflict)
}

// IsRetryable reports whether err indicates a transient infrastructure
// failure that the caller may retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
