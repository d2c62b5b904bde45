package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medvextract/medvextract-api/internal/auth"
	"github.com/medvextract/medvextract-api/internal/cache"
	"github.com/medvextract/medvextract-api/internal/config"
	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/mocks"
	"github.com/medvextract/medvextract-api/internal/pipeline"
	"github.com/medvextract/medvextract-api/internal/resilience"
	"github.com/medvextract/medvextract-api/internal/store"
	"github.com/medvextract/medvextract-api/internal/task"
)

const testSecret = "an-hmac-secret-that-is-long-enough-for-hs256"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakePipeline implements Pipeline with overridable hooks.
type fakePipeline struct {
	SubmitFn   func(ctx context.Context, req domain.WorkRequest) (*pipeline.Submission, error)
	StatusFn   func(ctx context.Context, id uuid.UUID) (*pipeline.StatusReport, error)
	ListFn     func(ctx context.Context, filter store.JobFilter) []*domain.Job
	BreakersFn func() map[string]string
}

func (f *fakePipeline) Submit(ctx context.Context, req domain.WorkRequest) (*pipeline.Submission, error) {
	return f.SubmitFn(ctx, req)
}

func (f *fakePipeline) Status(ctx context.Context, id uuid.UUID) (*pipeline.StatusReport, error) {
	return f.StatusFn(ctx, id)
}

func (f *fakePipeline) List(ctx context.Context, filter store.JobFilter) []*domain.Job {
	return f.ListFn(ctx, filter)
}

func (f *fakePipeline) Breakers() map[string]string {
	if f.BreakersFn == nil {
		return map[string]string{}
	}
	return f.BreakersFn()
}

func newTestRouter(p Pipeline, validator *auth.JWTService) http.Handler {
	cfg := RouterConfig{Handler: NewExtractionHandler(p), Logger: discardLogger()}
	if validator != nil {
		cfg.Auth = validator
	}
	return NewRouter(cfg)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestRootAndHealth(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{BreakersFn: func() map[string]string {
		return map[string]string{"extraction": "closed", "jobstore.read": "closed"}
	}}
	router := newTestRouter(p, nil)

	rec := doRequest(t, router, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Welcome")
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	rec = doRequest(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health := decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "healthy", health.Status)

	p.BreakersFn = func() map[string]string {
		return map[string]string{"extraction": "open", "jobstore.read": "closed"}
	}
	rec = doRequest(t, router, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	health = decodeBody[HealthResponse](t, rec)
	assert.Equal(t, "degraded", health.Status)
	assert.Equal(t, "open", health.Breakers["extraction"])
}

func TestExtractTasks(t *testing.T) {
	t.Parallel()

	jobID := uuid.New()

	tests := []struct {
		name           string
		body           string
		submitFn       func(ctx context.Context, req domain.WorkRequest) (*pipeline.Submission, error)
		expectedStatus int
		check          func(t *testing.T, rec *httptest.ResponseRecorder)
	}{
		{
			name: "accepted",
			body: `{"transcript":"Patient seen for cough.","metadata":{"clinic_id":"c-1"}}`,
			submitFn: func(_ context.Context, req domain.WorkRequest) (*pipeline.Submission, error) {
				if req.Transcript != "Patient seen for cough." || req.Metadata["clinic_id"] != "c-1" {
					return nil, errors.New("unexpected request")
				}
				return &pipeline.Submission{JobID: jobID, Status: domain.JobStatusPending}, nil
			},
			expectedStatus: http.StatusAccepted,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				resp := decodeBody[SubmissionResponse](t, rec)
				assert.Equal(t, jobID.String(), resp.TaskID)
				assert.Equal(t, "pending", resp.Status)
				assert.False(t, resp.Cached)
			},
		},
		{
			name: "cached result",
			body: `{"transcript":"Patient seen for cough."}`,
			submitFn: func(context.Context, domain.WorkRequest) (*pipeline.Submission, error) {
				return &pipeline.Submission{
					JobID:  jobID,
					Status: domain.JobStatusCompleted,
					Cached: true,
					Result: json.RawMessage(`{"tasks":[]}`),
				}, nil
			},
			expectedStatus: http.StatusOK,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				resp := decodeBody[SubmissionResponse](t, rec)
				assert.Equal(t, "completed", resp.Status)
				assert.True(t, resp.Cached)
				assert.JSONEq(t, `{"tasks":[]}`, string(resp.Result))
			},
		},
		{
			name:           "malformed json",
			body:           `{"transcript":`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown field",
			body:           `{"transcript":"x","patient_name":"Biscuit"}`,
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "invalid work request",
			body: `{"transcript":"   "}`,
			submitFn: func(_ context.Context, req domain.WorkRequest) (*pipeline.Submission, error) {
				return nil, req.Validate()
			},
			expectedStatus: http.StatusBadRequest,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.Contains(t, rec.Body.String(), "transcript is required")
			},
		},
		{
			name: "queue full",
			body: `{"transcript":"x"}`,
			submitFn: func(context.Context, domain.WorkRequest) (*pipeline.Submission, error) {
				return nil, pipeline.ErrQueueFull
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
		{
			name: "internal error hides details",
			body: `{"transcript":"x"}`,
			submitFn: func(context.Context, domain.WorkRequest) (*pipeline.Submission, error) {
				return nil, errors.New("dial tcp 10.1.2.3:5432: refused")
			},
			expectedStatus: http.StatusInternalServerError,
			check: func(t *testing.T, rec *httptest.ResponseRecorder) {
				assert.NotContains(t, rec.Body.String(), "10.1.2.3")
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := &fakePipeline{SubmitFn: tc.submitFn}
			if p.SubmitFn == nil {
				p.SubmitFn = func(context.Context, domain.WorkRequest) (*pipeline.Submission, error) {
					t.Fatal("Submit must not be called")
					return nil, nil
				}
			}

			rec := doRequest(t, newTestRouter(p, nil), http.MethodPost, "/extract-tasks", tc.body, nil)
			assert.Equal(t, tc.expectedStatus, rec.Code, rec.Body.String())
			if tc.check != nil {
				tc.check(t, rec)
			}
		})
	}
}

func TestExtractTasksBodyTooLarge(t *testing.T) {
	t.Parallel()

	p := &fakePipeline{SubmitFn: func(context.Context, domain.WorkRequest) (*pipeline.Submission, error) {
		t.Fatal("Submit must not be called")
		return nil, nil
	}}

	var body bytes.Buffer
	body.WriteString(`{"transcript":"`)
	body.WriteString(strings.Repeat("a", 3<<20))
	body.WriteString(`"}`)

	rec := doRequest(t, newTestRouter(p, nil), http.MethodPost, "/extract-tasks", body.String(), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	p := &fakePipeline{StatusFn: func(_ context.Context, got uuid.UUID) (*pipeline.StatusReport, error) {
		switch got {
		case id:
			return &pipeline.StatusReport{
				JobID:     id,
				Status:    domain.JobStatusFailed,
				Error:     "extraction service unavailable after 3 attempts",
				CreatedAt: created,
				UpdatedAt: created.Add(time.Second),
			}, nil
		default:
			return nil, pipeline.ErrJobNotFound
		}
	}}
	router := newTestRouter(p, nil)

	rec := doRequest(t, router, http.MethodGet, "/task/"+id.String(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[TaskStatusResponse](t, rec)
	assert.Equal(t, "failed", resp.Status)
	assert.Equal(t, "extraction service unavailable after 3 attempts", resp.Error)
	assert.Empty(t, resp.Result)
	require.NotNil(t, resp.CreatedAt)
	assert.True(t, created.Equal(*resp.CreatedAt))

	rec = doRequest(t, router, http.MethodGet, "/task/"+uuid.NewString(), "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/task/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListTranscripts(t *testing.T) {
	t.Parallel()

	job, err := domain.NewJob(domain.WorkRequest{Transcript: "t", Notes: "n"}, "abc123")
	require.NoError(t, err)

	var gotFilter store.JobFilter
	p := &fakePipeline{ListFn: func(_ context.Context, filter store.JobFilter) []*domain.Job {
		gotFilter = filter
		return []*domain.Job{job}
	}}
	router := newTestRouter(p, nil)

	rec := doRequest(t, router, http.MethodGet, "/transcripts?status=pending&limit=5", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rows := decodeBody[[]TranscriptResponse](t, rec)
	require.Len(t, rows, 1)
	assert.Equal(t, job.ID.String(), rows[0].TaskID)
	assert.Equal(t, "t", rows[0].Transcript)
	assert.Equal(t, "PENDING", rows[0].Status)
	assert.Equal(t, domain.JobStatusPending, gotFilter.Status)
	assert.Equal(t, 5, gotFilter.Limit)

	rec = doRequest(t, router, http.MethodGet, "/transcripts?status=bogus", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/transcripts?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	p.ListFn = func(context.Context, store.JobFilter) []*domain.Job { return []*domain.Job{} }
	rec = doRequest(t, router, http.MethodGet, "/transcripts", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestRouterAuthentication(t *testing.T) {
	t.Parallel()

	jwtSvc, err := auth.NewJWTService(config.AuthConfig{JWTSecret: testSecret, TokenLifetime: time.Hour})
	require.NoError(t, err)

	p := &fakePipeline{ListFn: func(context.Context, store.JobFilter) []*domain.Job { return nil }}
	router := newTestRouter(p, jwtSvc)

	rec := doRequest(t, router, http.MethodGet, "/transcripts", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "health stays public")

	token, err := jwtSvc.GenerateToken(context.Background(), "clinic-9")
	require.NoError(t, err)
	rec = doRequest(t, router, http.MethodGet, "/transcripts", "",
		http.Header{"Authorization": {"Bearer " + token}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterEndToEnd(t *testing.T) {
	t.Parallel()

	jobs := mocks.NewMockJobStore()
	runner := task.NewTaskRunner(task.TaskRunnerConfig{WorkerCount: 1, QueueSize: 4}, discardLogger())
	orch, err := pipeline.NewOrchestrator(pipeline.Deps{
		Store:     jobs,
		Cache:     cache.NewResultCache(cache.NewMemoryBackend(), cache.Config{}, discardLogger(), nil),
		Extractor: mocks.NewMockExtractor(map[string]any{"tasks": []any{map[string]any{"description": "recheck"}}}),
		Policies: resilience.NewRegistry(resilience.Config{
			Retry: resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
		}, discardLogger(), nil),
		Runner: runner,
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, runner.Start(ctx, orch.RecoverPending))
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = runner.Stop(stopCtx)
	})

	router := newTestRouter(orch, nil)
	body := `{"transcript":"Dog limping on left hind leg.","metadata":{"clinic_id":"c-9"}}`

	rec := doRequest(t, router, http.MethodPost, "/extract-tasks", body, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	sub := decodeBody[SubmissionResponse](t, rec)

	require.Eventually(t, func() bool {
		req := httptest.NewRequest(http.MethodGet, "/task/"+sub.TaskID, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		var resp TaskStatusResponse
		return rec.Code == http.StatusOK &&
			json.Unmarshal(rec.Body.Bytes(), &resp) == nil &&
			resp.Status == "completed" &&
			runner.InFlight() == 0
	}, 2*time.Second, 5*time.Millisecond)

	rec = doRequest(t, router, http.MethodGet, "/task/"+sub.TaskID, "", nil)
	status := decodeBody[TaskStatusResponse](t, rec)
	assert.JSONEq(t, `{"tasks":[{"description":"recheck"}]}`, string(status.Result))

	// The identical request is answered from the cache without a new job.
	rec = doRequest(t, router, http.MethodPost, "/extract-tasks", body, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cached := decodeBody[SubmissionResponse](t, rec)
	assert.True(t, cached.Cached)
	assert.NotEqual(t, sub.TaskID, cached.TaskID)
	assert.Equal(t, 1, jobs.Len())

	rec = doRequest(t, router, http.MethodGet, "/task/"+cached.TaskID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "completed", decodeBody[TaskStatusResponse](t, rec).Status)
}
