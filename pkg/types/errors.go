package types

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers test with errors.Is.
var (
	// ErrValidation marks malformed or out-of-range input. Never persisted.
	ErrValidation = errors.New("validation failed")

	// ErrUnavailable marks a storage operation that failed and was rolled back.
	ErrUnavailable = errors.New("storage unavailable")

	// ErrConflict marks an atomic increment whose baseline did not match the
	// persisted value. The caller re-reads the baseline; nothing was written.
	ErrConflict = errors.New("concurrency conflict")

	// ErrNotFound marks a lookup for a record that does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError describes one rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

// Invalid returns a *ValidationError for field.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a failed storage operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnavailable) true.
func (e *StorageError) Is(target error) bool { return target == ErrUnavailable }
