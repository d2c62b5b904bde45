package pipeline

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/domain"
)

// Submission is the answer to a submitted request.
type Submission struct {
	// JobID identifies the submission. On a cache hit no job row exists; the
	// ID resolves through a short-lived cache receipt.
	JobID       uuid.UUID
	Fingerprint domain.Fingerprint
	Status      domain.JobStatus

	// Cached is true when Result came from the cache.
	Cached bool

	// Result is the sanitized result for COMPLETED submissions.
	Result json.RawMessage

	// Error is the failure message for FAILED submissions.
	Error string
}

// StatusReport describes a job for status queries.
type StatusReport struct {
	JobID     uuid.UUID
	Status    domain.JobStatus
	Result    json.RawMessage
	Error     string
	Cached    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func reportFromJob(job *domain.Job) *StatusReport {
	return &StatusReport{
		JobID:     job.ID,
		Status:    job.Status,
		Result:    job.Result,
		Error:     job.ErrorMessage,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

func submissionFromJob(job *domain.Job) *Submission {
	return &Submission{
		JobID:       job.ID,
		Fingerprint: job.Fingerprint,
		Status:      job.Status,
		Result:      job.Result,
		Error:       job.ErrorMessage,
	}
}
