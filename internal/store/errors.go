package store

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every JobStore implementation. Drivers translate
// their native errors into these so callers never inspect driver types.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrDuplicate         = errors.New("entity already exists")
	ErrInvalidEntity     = errors.New("invalid entity")
	ErrUpdateFailed      = errors.New("update failed")
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrUnavailable marks connection-level failures. The pipeline treats it
	// as transient.
	ErrUnavailable = errors.New("store unavailable")

	ErrJobNotFound = fmt.Errorf("%w: job", ErrNotFound)

	// ErrJobNotPending: a terminal write hit a job that is already
	// COMPLETED or FAILED.
	ErrJobNotPending = errors.New("job is not pending")
)

// IsNotFoundError reports whether err wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}
