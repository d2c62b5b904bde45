package resilience

import (
	"context"
	"errors"
)

// Class tells the retry loop whether a failure may succeed on a later attempt.
type Class int

const (
	// ClassTransient failures are retried: network errors, timeouts,
	// throttling, upstream unavailability.
	ClassTransient Class = iota

	// ClassPermanent failures are returned immediately: validation errors,
	// rejected input, malformed output, caller cancellation.
	ClassPermanent
)

func (c Class) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "transient"
}

// Classifier assigns a Class to a failure.
type Classifier func(error) Class

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Transient marks err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// DefaultClassifier honours Permanent and Transient markers and treats
// caller cancellation as permanent. Anything else, including network errors
// and timeouts, is transient.
func DefaultClassifier(err error) Class {
	var pe *permanentError
	if errors.As(err, &pe) {
		return ClassPermanent
	}
	var te *transientError
	if errors.As(err, &te) {
		return ClassTransient
	}
	if errors.Is(err, context.Canceled) {
		return ClassPermanent
	}
	return ClassTransient
}
