package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/api/shared"
	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/pipeline"
	"github.com/medvextract/medvextract-api/internal/platform/logger"
	"github.com/medvextract/medvextract-api/internal/store"
)

// Pipeline is the part of the orchestrator served over HTTP.
type Pipeline interface {
	Submit(ctx context.Context, req domain.WorkRequest) (*pipeline.Submission, error)
	Status(ctx context.Context, id uuid.UUID) (*pipeline.StatusReport, error)
	List(ctx context.Context, filter store.JobFilter) []*domain.Job
	Breakers() map[string]string
}

// ExtractionHandler serves the extraction endpoints.
type ExtractionHandler struct {
	pipeline Pipeline
}

// NewExtractionHandler creates an ExtractionHandler.
func NewExtractionHandler(p Pipeline) *ExtractionHandler {
	return &ExtractionHandler{pipeline: p}
}

// Root handles GET /.
func (h *ExtractionHandler) Root(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{
		"message": "Welcome to the Medical Visit Action Extraction API!",
	})
}

// ExtractTasks handles POST /extract-tasks. A cache hit answers 200 with the
// result; a miss answers 202 with the task id to poll.
func (h *ExtractionHandler) ExtractTasks(w http.ResponseWriter, r *http.Request) {
	var req ExtractTasksRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		if errors.Is(err, shared.ErrBodyTooLarge) {
			shared.RespondWithError(w, r, http.StatusRequestEntityTooLarge, GetSafeErrorMessage(err))
			return
		}
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}

	sub, err := h.pipeline.Submit(r.Context(), req.WorkRequest())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	status := http.StatusAccepted
	if sub.Status.Terminal() {
		status = http.StatusOK
	}

	logger.FromContext(r.Context()).Info("extraction submitted",
		"task_id", sub.JobID,
		"cached", sub.Cached)
	shared.RespondWithJSON(w, r, status, submissionToResponse(sub))
}

// GetTask handles GET /task/{taskID}.
func (h *ExtractionHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := getPathUUID(r, "taskID")
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid task id")
		return
	}

	report, err := h.pipeline.Status(r.Context(), id)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, reportToResponse(report))
}

// ListTranscripts handles GET /transcripts. Store failures yield an empty list.
func (h *ExtractionHandler) ListTranscripts(w http.ResponseWriter, r *http.Request) {
	filter, err := parseJobFilter(r)
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, GetSafeErrorMessage(err))
		return
	}

	jobs := h.pipeline.List(r.Context(), filter)
	resp := make([]TranscriptResponse, 0, len(jobs))
	for _, job := range jobs {
		resp = append(resp, jobToTranscriptResponse(job))
	}

	logger.FromContext(r.Context()).Debug("listed transcripts", "count", len(resp))
	shared.RespondWithJSON(w, r, http.StatusOK, resp)
}

// Health handles GET /health. The service reports "degraded" while any
// breaker is not closed.
func (h *ExtractionHandler) Health(w http.ResponseWriter, r *http.Request) {
	breakers := h.pipeline.Breakers()
	status := "healthy"
	for _, state := range breakers {
		if state != "closed" {
			status = "degraded"
			break
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: status, Breakers: breakers})
}
