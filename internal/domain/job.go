package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Fingerprint is the fixed-length hex digest of a WorkRequest's canonical
// serialization. It is the cache key and the correlation key of a Job.
type Fingerprint string

// String returns the hex digest.
func (f Fingerprint) String() string {
	return string(f)
}

// Short returns a prefix of the digest suitable for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 12 {
		return string(f)
	}
	return string(f[:12])
}

// JobStatus represents the lifecycle state of a Job.
type JobStatus string

// Possible job status values. COMPLETED and FAILED are terminal.
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusCompleted, JobStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal reports whether s admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// ParseJobStatus converts a stored or user-supplied value into a JobStatus.
// Matching is case-insensitive.
func ParseJobStatus(v string) (JobStatus, error) {
	s := JobStatus(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobStatus, v)
	}
	return s, nil
}

// Job is the persisted lifecycle record of one unit of work.
//
// A Job is created once in PENDING, mutated exactly once by a terminal
// transition, and never deleted by the pipeline.
type Job struct {
	ID           uuid.UUID       `json:"id"`
	Fingerprint  Fingerprint     `json:"fingerprint"`
	Request      WorkRequest     `json:"request"`
	Status       JobStatus       `json:"status"`
	RawResult    json.RawMessage `json:"raw_result,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewJob creates a PENDING job for the given request and fingerprint.
func NewJob(req WorkRequest, fp Fingerprint) (*Job, error) {
	if fp == "" {
		return nil, fmt.Errorf("%w: fingerprint is required", ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Job{
		ID:          uuid.New(),
		Fingerprint: fp,
		Request:     req,
		Status:      JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Complete moves a PENDING job to COMPLETED with the raw and sanitized results.
func (j *Job) Complete(raw, result json.RawMessage) error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusCompleted)
	}
	if len(result) == 0 {
		return fmt.Errorf("%w: completed job requires a result", ErrJobStateInvariant)
	}

	j.Status = JobStatusCompleted
	j.RawResult = raw
	j.Result = result
	j.ErrorMessage = ""
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// Fail moves a PENDING job to FAILED with a human-readable message.
func (j *Job) Fail(message string) error {
	if j.Status != JobStatusPending {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, JobStatusFailed)
	}
	if message == "" {
		return fmt.Errorf("%w: failed job requires an error message", ErrJobStateInvariant)
	}

	j.Status = JobStatusFailed
	j.RawResult = nil
	j.Result = nil
	j.ErrorMessage = message
	j.UpdatedAt = time.Now().UTC()
	return nil
}

// CheckInvariant verifies that the job's fields agree with its status:
// COMPLETED carries a result and no error, FAILED carries an error and no
// result, PENDING carries neither.
func (j *Job) CheckInvariant() error {
	hasResult := len(j.Result) > 0 || len(j.RawResult) > 0
	hasError := j.ErrorMessage != ""

	switch j.Status {
	case JobStatusPending:
		if hasResult || hasError {
			return fmt.Errorf("%w: pending job has result or error", ErrJobStateInvariant)
		}
	case JobStatusCompleted:
		if len(j.Result) == 0 || hasError {
			return fmt.Errorf("%w: completed job must have a result and no error", ErrJobStateInvariant)
		}
	case JobStatusFailed:
		if !hasError || hasResult {
			return fmt.Errorf("%w: failed job must have an error and no result", ErrJobStateInvariant)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidJobStatus, j.Status)
	}
	return nil
}
