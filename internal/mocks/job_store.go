package mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/store"
)

// MockJobStore is an in-memory store.JobStore.
type MockJobStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*domain.Job

	// Custom behavior functions
	CreateJobFn       func(ctx context.Context, job *domain.Job) error
	GetJobFn          func(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	CompleteJobFn     func(ctx context.Context, id uuid.UUID, rawResult, result json.RawMessage) error
	FailJobFn         func(ctx context.Context, id uuid.UUID, message string) error
	ListJobsFn        func(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error)
	ListPendingJobsFn func(ctx context.Context) ([]*domain.Job, error)

	// Call tracking for verification
	calls map[string]int
}

var _ store.JobStore = (*MockJobStore)(nil)

// NewMockJobStore creates an empty MockJobStore.
func NewMockJobStore() *MockJobStore {
	return &MockJobStore{
		jobs:  make(map[uuid.UUID]*domain.Job),
		calls: make(map[string]int),
	}
}

// Calls returns how many times method was invoked.
func (m *MockJobStore) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[method]
}

// Len returns the number of stored jobs.
func (m *MockJobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs)
}

// Jobs returns copies of every stored job, oldest first.
func (m *MockJobStore) Jobs() []*domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(*domain.Job) bool { return true })
}

func (m *MockJobStore) track(method string) {
	m.mu.Lock()
	m.calls[method]++
	m.mu.Unlock()
}

// CreateJob implements store.JobStore.
func (m *MockJobStore) CreateJob(ctx context.Context, job *domain.Job) error {
	m.track("CreateJob")
	if m.CreateJobFn != nil {
		return m.CreateJobFn(ctx, job)
	}
	return m.DefaultCreateJob(ctx, job)
}

// DefaultCreateJob stores a copy of job.
func (m *MockJobStore) DefaultCreateJob(_ context.Context, job *domain.Job) error {
	if job.Status != domain.JobStatusPending {
		return fmt.Errorf("%w: new job must be pending", store.ErrInvalidEntity)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; ok {
		return store.ErrDuplicate
	}
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

// GetJob implements store.JobStore.
func (m *MockJobStore) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	m.track("GetJob")
	if m.GetJobFn != nil {
		return m.GetJobFn(ctx, id)
	}
	return m.DefaultGetJob(ctx, id)
}

// DefaultGetJob returns a copy of the stored job.
func (m *MockJobStore) DefaultGetJob(_ context.Context, id uuid.UUID) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, store.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

// CompleteJob implements store.JobStore.
func (m *MockJobStore) CompleteJob(ctx context.Context, id uuid.UUID, rawResult, result json.RawMessage) error {
	m.track("CompleteJob")
	if m.CompleteJobFn != nil {
		return m.CompleteJobFn(ctx, id, rawResult, result)
	}
	return m.DefaultCompleteJob(ctx, id, rawResult, result)
}

// DefaultCompleteJob moves a pending job to COMPLETED.
func (m *MockJobStore) DefaultCompleteJob(_ context.Context, id uuid.UUID, rawResult, result json.RawMessage) error {
	return m.transition(id, func(job *domain.Job) error {
		return job.Complete(rawResult, result)
	})
}

// FailJob implements store.JobStore.
func (m *MockJobStore) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	m.track("FailJob")
	if m.FailJobFn != nil {
		return m.FailJobFn(ctx, id, message)
	}
	return m.DefaultFailJob(ctx, id, message)
}

// DefaultFailJob moves a pending job to FAILED.
func (m *MockJobStore) DefaultFailJob(_ context.Context, id uuid.UUID, message string) error {
	return m.transition(id, func(job *domain.Job) error {
		return job.Fail(message)
	})
}

func (m *MockJobStore) transition(id uuid.UUID, apply func(*domain.Job) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return store.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPending {
		return store.ErrJobNotPending
	}
	cp := *job
	if err := apply(&cp); err != nil {
		return fmt.Errorf("%w: %w", store.ErrInvalidEntity, err)
	}
	m.jobs[id] = &cp
	return nil
}

// ListJobs implements store.JobStore.
func (m *MockJobStore) ListJobs(ctx context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	m.track("ListJobs")
	if m.ListJobsFn != nil {
		return m.ListJobsFn(ctx, filter)
	}
	return m.DefaultListJobs(ctx, filter)
}

// DefaultListJobs lists stored jobs newest first.
func (m *MockJobStore) DefaultListJobs(_ context.Context, filter store.JobFilter) ([]*domain.Job, error) {
	filter = filter.Normalize()
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := m.sortedLocked(func(j *domain.Job) bool {
		return filter.Status == "" || j.Status == filter.Status
	})
	for i, j := 0, len(jobs)-1; i < j; i, j = i+1, j-1 {
		jobs[i], jobs[j] = jobs[j], jobs[i]
	}

	if filter.Offset >= len(jobs) {
		return []*domain.Job{}, nil
	}
	jobs = jobs[filter.Offset:]
	if len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

// ListPendingJobs implements store.JobStore.
func (m *MockJobStore) ListPendingJobs(ctx context.Context) ([]*domain.Job, error) {
	m.track("ListPendingJobs")
	if m.ListPendingJobsFn != nil {
		return m.ListPendingJobsFn(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLocked(func(j *domain.Job) bool { return j.Status == domain.JobStatusPending }), nil
}

// sortedLocked returns copies of matching jobs ordered by creation time.
func (m *MockJobStore) sortedLocked(keep func(*domain.Job) bool) []*domain.Job {
	out := make([]*domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if keep(job) {
			cp := *job
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Seed stores job as-is, bypassing validation. CreatedAt defaults to now.
func (m *MockJobStore) Seed(job *domain.Job) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.jobs[job.ID] = &cp
}
