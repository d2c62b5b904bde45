package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/task"
)

// ExtractionTask runs the worker side of the pipeline for one job.
type ExtractionTask struct {
	job          *domain.Job
	orchestrator *Orchestrator
}

var _ task.Task = (*ExtractionTask)(nil)

// NewExtractionTask creates a task that processes job with o.
func NewExtractionTask(o *Orchestrator, job *domain.Job) *ExtractionTask {
	return &ExtractionTask{job: job, orchestrator: o}
}

// ID returns the job ID.
func (t *ExtractionTask) ID() uuid.UUID {
	return t.job.ID
}

// Type returns task.TaskTypeExtraction.
func (t *ExtractionTask) Type() string {
	return task.TaskTypeExtraction
}

// Execute processes the job.
func (t *ExtractionTask) Execute(ctx context.Context) error {
	return t.orchestrator.Process(ctx, t.job)
}
