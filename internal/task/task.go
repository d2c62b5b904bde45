package task

import (
	"context"

	"github.com/google/uuid"
)

// TaskTypeExtraction identifies transcript extraction tasks.
const TaskTypeExtraction = "extraction"

// Task is a unit of background work.
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Execute runs the task. The context is not cancelled when the submitting
	// request ends.
	Execute(ctx context.Context) error
}

// TaskQueueReader provides read-only access to the task channel.
type TaskQueueReader interface {
	// Channel returns the channel workers consume from. It is closed by Close.
	Channel() <-chan Task
}

// TaskQueueWriter provides write access to the task queue.
type TaskQueueWriter interface {
	// Enqueue adds a task without blocking.
	// Returns ErrQueueFull or ErrQueueClosed.
	Enqueue(task Task) error

	// Close stops intake. It is safe to call more than once.
	Close()
}

// RecoverFunc rebuilds tasks left unfinished by a previous process.
type RecoverFunc func(ctx context.Context) ([]Task, error)
