package mocks

import (
	"context"
	"sync"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
)

// MockExtractor implements extraction.Extractor for testing.
type MockExtractor struct {
	// ExtractFn replaces the default behavior when set.
	ExtractFn func(ctx context.Context, req domain.WorkRequest) (any, error)

	// Result is returned once Errors is exhausted.
	Result any

	// Errors are returned in order by successive calls before Result.
	Errors []error

	mu       sync.Mutex
	calls    int
	requests []domain.WorkRequest
}

var _ extraction.Extractor = (*MockExtractor)(nil)

// NewMockExtractor creates a MockExtractor that returns result after
// returning each of errs once.
func NewMockExtractor(result any, errs ...error) *MockExtractor {
	return &MockExtractor{Result: result, Errors: errs}
}

// Extract implements extraction.Extractor.
func (m *MockExtractor) Extract(ctx context.Context, req domain.WorkRequest) (any, error) {
	m.mu.Lock()
	n := m.calls
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ExtractFn != nil {
		return m.ExtractFn(ctx, req)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if n < len(m.Errors) && m.Errors[n] != nil {
		return nil, m.Errors[n]
	}
	return m.Result, nil
}

// Calls returns the number of Extract calls.
func (m *MockExtractor) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Requests returns the requests passed to Extract.
func (m *MockExtractor) Requests() []domain.WorkRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.WorkRequest(nil), m.requests...)
}
