package pipeline

import (
	"errors"

	"github.com/medvextract/medvextract-api/internal/store"
)

var (
	// ErrQueueFull is returned by Submit when the task runner refuses the job.
	// The job has been moved to FAILED.
	ErrQueueFull = errors.New("extraction queue is full")

	// ErrTerminalWrite is returned when a job's terminal transition could not
	// be recorded. The job stays PENDING and is retried on the next recovery.
	ErrTerminalWrite = errors.New("failed to record job outcome")

	// ErrJobNotFound is returned by Status for unknown job IDs.
	ErrJobNotFound = store.ErrJobNotFound

	// ErrStoreUnavailable is returned when the job store cannot be read or
	// written outside a terminal transition.
	ErrStoreUnavailable = errors.New("job store unavailable")

	// ErrNoRunner is returned by Submit when the orchestrator has no task runner.
	ErrNoRunner = errors.New("no task runner configured")
)
