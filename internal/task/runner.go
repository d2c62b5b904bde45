package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/medvextract/medvextract-api/internal/redact"
)

// ErrRunnerNotStarted is returned by Submit before Start.
var ErrRunnerNotStarted = errors.New("task runner not started")

// TaskRunnerConfig holds configuration for the task runner
type TaskRunnerConfig struct {
	// WorkerCount determines how many concurrent workers process tasks
	WorkerCount int

	// QueueSize determines the buffer size for the in-memory task queue
	QueueSize int
}

// DefaultTaskRunnerConfig returns a TaskRunnerConfig with reasonable defaults
func DefaultTaskRunnerConfig() TaskRunnerConfig {
	return TaskRunnerConfig{
		WorkerCount: 4,
		QueueSize:   100,
	}
}

// TaskRunner executes submitted tasks on a fixed pool of workers.
type TaskRunner struct {
	queue      *TaskQueue
	config     TaskRunnerConfig
	logger     *slog.Logger
	wg         sync.WaitGroup
	started    atomic.Bool
	inFlight   atomic.Int64
	errHandler func(task Task, err error)
}

// NewTaskRunner creates a TaskRunner. Call Start before Submit.
func NewTaskRunner(config TaskRunnerConfig, logger *slog.Logger) *TaskRunner {
	defaults := DefaultTaskRunnerConfig()
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "task_runner")

	r := &TaskRunner{
		queue:  NewTaskQueue(config.QueueSize, logger),
		config: config,
		logger: logger,
	}
	r.errHandler = func(task Task, err error) {
		logger.Error("task execution failed",
			"task_id", task.ID(),
			"task_type", task.Type(),
			"error", redact.Error(err))
	}
	return r
}

// SetErrorHandler replaces the handler called when a task fails or panics.
// It must be called before Start.
func (r *TaskRunner) SetErrorHandler(handler func(task Task, err error)) {
	if handler != nil {
		r.errHandler = handler
	}
}

// Submit enqueues task without blocking.
// Returns ErrQueueFull, ErrQueueClosed or ErrRunnerNotStarted.
func (r *TaskRunner) Submit(task Task) error {
	if !r.started.Load() {
		return ErrRunnerNotStarted
	}
	return r.queue.Enqueue(task)
}

// Start re-enqueues recovered tasks, then starts the workers. Tasks run under
// a context detached from ctx's cancellation so in-flight work finishes on
// shutdown; Stop is the only way to end the workers.
func (r *TaskRunner) Start(ctx context.Context, recoverFn RecoverFunc) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.New("task runner already started")
	}

	if recoverFn != nil {
		tasks, err := recoverFn(ctx)
		if err != nil {
			r.started.Store(false)
			return fmt.Errorf("failed to recover tasks: %w", err)
		}
		requeued := 0
		for _, t := range tasks {
			if err := r.queue.Enqueue(t); err != nil {
				r.logger.Error("failed to requeue recovered task",
					"task_id", t.ID(),
					"task_type", t.Type(),
					"error", err)
				continue
			}
			requeued++
		}
		r.logger.Info("recovered unfinished tasks",
			"found", len(tasks),
			"requeued", requeued)
	}

	workCtx := context.WithoutCancel(ctx)
	for i := 0; i < r.config.WorkerCount; i++ {
		r.wg.Add(1)
		go r.worker(workCtx, i)
	}

	r.logger.Info("task runner started",
		"worker_count", r.config.WorkerCount,
		"queue_size", r.config.QueueSize)
	return nil
}

// Stop closes the queue and waits until the workers have drained it, or
// until ctx is done.
func (r *TaskRunner) Stop(ctx context.Context) error {
	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("task runner stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("task runner stop timed out",
			"in_flight", r.inFlight.Load(),
			"queued", r.queue.Len())
		return ctx.Err()
	}
}

// InFlight returns the number of tasks currently executing.
func (r *TaskRunner) InFlight() int {
	return int(r.inFlight.Load())
}

// Queued returns the number of tasks waiting for a worker.
func (r *TaskRunner) Queued() int {
	return r.queue.Len()
}

func (r *TaskRunner) worker(ctx context.Context, id int) {
	defer r.wg.Done()

	r.logger.Debug("starting worker", "worker_id", id)
	for task := range r.queue.Channel() {
		r.processTask(ctx, task, id)
	}
	r.logger.Debug("task channel closed, stopping worker", "worker_id", id)
}

// processTask executes one task. A panicking task is reported to the error
// handler and does not take the worker down.
func (r *TaskRunner) processTask(ctx context.Context, task Task, workerID int) {
	r.inFlight.Add(1)
	defer r.inFlight.Add(-1)

	log := r.logger.With(
		"task_id", task.ID(),
		"task_type", task.Type(),
		"worker_id", workerID,
	)

	defer func() {
		if p := recover(); p != nil {
			r.errHandler(task, fmt.Errorf("task panicked: %v", p))
		}
	}()

	log.Debug("processing task")
	if err := task.Execute(ctx); err != nil {
		r.errHandler(task, err)
		return
	}
	log.Debug("task completed")
}
