package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidWorkRequest is returned when a submitted WorkRequest is rejected
	// before any job is created.
	ErrInvalidWorkRequest = errors.New("invalid work request")

	// ErrInvalidJobStatus is returned when a job status is not one of the known values.
	ErrInvalidJobStatus = errors.New("invalid job status")

	// ErrJobStateInvariant is returned when a job's fields do not agree with its status.
	ErrJobStateInvariant = errors.New("job state invariant violated")

	// ErrInvalidTransition is returned when a job is moved out of a terminal state.
	ErrInvalidTransition = errors.New("invalid job status transition")
)
