package api

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/pipeline"
)

// ExtractTasksRequest is the payload of POST /extract-tasks.
type ExtractTasksRequest struct {
	Transcript string         `json:"transcript"`
	Notes      string         `json:"notes,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// WorkRequest converts the payload into a domain.WorkRequest.
func (r ExtractTasksRequest) WorkRequest() domain.WorkRequest {
	return domain.WorkRequest{
		Transcript: r.Transcript,
		Notes:      r.Notes,
		Metadata:   r.Metadata,
	}
}

// SubmissionResponse answers POST /extract-tasks.
type SubmissionResponse struct {
	TaskID string          `json:"task_id"`
	Status string          `json:"status"`
	Cached bool            `json:"cached,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// TaskStatusResponse answers GET /task/{taskID}. Status is lower case.
type TaskStatusResponse struct {
	TaskID    string          `json:"task_id"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	Cached    bool            `json:"cached,omitempty"`
	CreatedAt *time.Time      `json:"created_at,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

// TranscriptResponse is one row of GET /transcripts.
type TranscriptResponse struct {
	TaskID       string          `json:"task_id"`
	Fingerprint  string          `json:"fingerprint"`
	Transcript   string          `json:"transcript"`
	Notes        string          `json:"notes,omitempty"`
	Metadata     map[string]any  `json:"metadata,omitempty"`
	Status       string          `json:"status"`
	Result       json.RawMessage `json:"result,omitempty"`
	RawResult    json.RawMessage `json:"raw_result,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// HealthResponse answers GET /health.
type HealthResponse struct {
	Status   string            `json:"status"`
	Breakers map[string]string `json:"breakers"`
}

func lowerStatus(s domain.JobStatus) string {
	return strings.ToLower(string(s))
}

func submissionToResponse(sub *pipeline.Submission) SubmissionResponse {
	return SubmissionResponse{
		TaskID: sub.JobID.String(),
		Status: lowerStatus(sub.Status),
		Cached: sub.Cached,
		Result: sub.Result,
		Error:  sub.Error,
	}
}

func reportToResponse(report *pipeline.StatusReport) TaskStatusResponse {
	resp := TaskStatusResponse{
		TaskID: report.JobID.String(),
		Status: lowerStatus(report.Status),
		Cached: report.Cached,
	}
	switch report.Status {
	case domain.JobStatusCompleted:
		resp.Result = report.Result
	case domain.JobStatusFailed:
		resp.Error = report.Error
	}
	if !report.CreatedAt.IsZero() {
		created, updated := report.CreatedAt, report.UpdatedAt
		resp.CreatedAt = &created
		resp.UpdatedAt = &updated
	}
	return resp
}

func jobToTranscriptResponse(job *domain.Job) TranscriptResponse {
	return TranscriptResponse{
		TaskID:       job.ID.String(),
		Fingerprint:  job.Fingerprint.String(),
		Transcript:   job.Request.Transcript,
		Notes:        job.Request.Notes,
		Metadata:     job.Request.Metadata,
		Status:       string(job.Status),
		Result:       job.Result,
		RawResult:    job.RawResult,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	}
}
