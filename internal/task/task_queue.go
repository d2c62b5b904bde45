package task

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Enqueue failures. The pipeline maps ErrQueueFull to a FAILED job and 503.
var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// TaskQueue is a fixed-capacity buffer between submitters and workers.
// Enqueue never blocks; a full queue rejects the task.
type TaskQueue struct {
	mu     sync.RWMutex
	tasks  chan Task
	closed bool
	logger *slog.Logger
}

var (
	_ TaskQueueReader = (*TaskQueue)(nil)
	_ TaskQueueWriter = (*TaskQueue)(nil)
)

// NewTaskQueue returns a queue with capacity size, minimum one.
func NewTaskQueue(size int, logger *slog.Logger) *TaskQueue {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskQueue{
		tasks:  make(chan Task, size),
		logger: logger,
	}
}

// Enqueue hands task to the workers or fails with ErrQueueFull or
// ErrQueueClosed.
func (q *TaskQueue) Enqueue(task Task) error {
	// Close takes the write lock, so the channel stays open while we send.
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		q.logger.Debug("queued extraction task",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"depth", len(q.tasks))
		return nil
	default:
		return fmt.Errorf("%w: %d of %d slots used", ErrQueueFull, len(q.tasks), cap(q.tasks))
	}
}

// Close stops intake. Workers still drain whatever is buffered.
func (q *TaskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.tasks)
	q.logger.Info("task queue stopped accepting work", "buffered", len(q.tasks))
}

// Channel is read by the worker pool.
func (q *TaskQueue) Channel() <-chan Task {
	return q.tasks
}

func (q *TaskQueue) Len() int {
	return len(q.tasks)
}

func (q *TaskQueue) Cap() int {
	return cap(q.tasks)
}
