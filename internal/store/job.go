package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/domain"
)

// DefaultListLimit is used when a JobFilter carries no limit.
const DefaultListLimit = 50

// MaxListLimit caps JobFilter.Limit.
const MaxListLimit = 500

// JobFilter selects jobs for listing. Results are ordered newest first.
type JobFilter struct {
	// Status restricts results to one status when non-empty.
	Status domain.JobStatus

	// Limit bounds the number of results. Zero means DefaultListLimit.
	Limit int

	// Offset skips results for pagination.
	Offset int
}

// Normalize clamps Limit and Offset into their accepted ranges.
func (f JobFilter) Normalize() JobFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	if f.Limit > MaxListLimit {
		f.Limit = MaxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// JobStore persists the lifecycle of extraction jobs.
//
// A job row is inserted once in PENDING and moved exactly once to COMPLETED
// or FAILED. Implementations never delete rows.
type JobStore interface {
	// CreateJob inserts a PENDING job.
	// Returns ErrDuplicate if a job with the same ID exists.
	CreateJob(ctx context.Context, job *domain.Job) error

	// GetJob retrieves a job by ID.
	// Returns ErrJobNotFound if the job does not exist.
	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)

	// CompleteJob moves a PENDING job to COMPLETED with its raw and sanitized results.
	// Returns ErrJobNotFound or ErrJobNotPending.
	CompleteJob(ctx context.Context, id uuid.UUID, rawResult, result json.RawMessage) error

	// FailJob moves a PENDING job to FAILED with a human-readable message.
	// Returns ErrJobNotFound or ErrJobNotPending.
	FailJob(ctx context.Context, id uuid.UUID, message string) error

	// ListJobs returns jobs matching filter, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*domain.Job, error)

	// ListPendingJobs returns every PENDING job, oldest first.
	ListPendingJobs(ctx context.Context) ([]*domain.Job, error)
}
