package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medvextract/medvextract-api/internal/cache"
	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/extraction"
	"github.com/medvextract/medvextract-api/internal/mocks"
	"github.com/medvextract/medvextract-api/internal/resilience"
	"github.com/medvextract/medvextract-api/internal/task"
)

const sampleTranscript = "Owner reports Biscuit has been limping on the left hind leg since Tuesday."

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRequest() domain.WorkRequest {
	return domain.WorkRequest{
		Transcript: sampleTranscript,
		Notes:      "Recheck in two weeks.",
		Metadata:   map[string]any{"patient_id": "p-123", "clinic_id": "c-9"},
	}
}

func fastResilience() resilience.Config {
	return resilience.Config{
		Retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			Multiplier:   1.5,
			MaxDelay:     5 * time.Millisecond,
		},
		Breaker: resilience.BreakerConfig{
			FailureThreshold: 5,
			Cooldown:         time.Hour,
		},
	}
}

// captureRunner records submitted tasks without running them.
type captureRunner struct {
	mu    sync.Mutex
	tasks []task.Task
	err   error
}

func (r *captureRunner) Submit(t task.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.tasks = append(r.tasks, t)
	return nil
}

// drain executes every captured task in submission order.
func (r *captureRunner) drain(t *testing.T) {
	t.Helper()
	r.mu.Lock()
	tasks := r.tasks
	r.tasks = nil
	r.mu.Unlock()
	for _, tk := range tasks {
		require.NoError(t, tk.Execute(context.Background()))
	}
}

type fixture struct {
	orch      *Orchestrator
	jobs      *mocks.MockJobStore
	extractor *mocks.MockExtractor
	backend   *cache.MemoryBackend
	cache     *cache.ResultCache
	runner    *captureRunner
	registry  *resilience.Registry
}

type fixtureOption func(*Deps)

func withSchema(t *testing.T, schema string) fixtureOption {
	return func(d *Deps) {
		v, err := extraction.NewSchemaValidator([]byte(schema))
		require.NoError(t, err)
		d.Schema = v
	}
}

func withLogger(l *slog.Logger) fixtureOption {
	return func(d *Deps) { d.Logger = l }
}

func newFixture(t *testing.T, extractor *mocks.MockExtractor, opts ...fixtureOption) *fixture {
	t.Helper()

	f := &fixture{
		jobs:      mocks.NewMockJobStore(),
		extractor: extractor,
		backend:   cache.NewMemoryBackend(),
		runner:    &captureRunner{},
		registry:  resilience.NewRegistry(fastResilience(), discardLogger(), nil),
	}
	f.cache = cache.NewResultCache(f.backend, cache.Config{}, discardLogger(), nil)

	deps := Deps{
		Store:     f.jobs,
		Cache:     f.cache,
		Extractor: extractor,
		Policies:  f.registry,
		Runner:    f.runner,
		Logger:    discardLogger(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	orch, err := NewOrchestrator(deps)
	require.NoError(t, err)
	f.orch = orch
	return f
}

var errProviderDown = errors.New("provider down")

func withPolicies(r *resilience.Registry) fixtureOption {
	return func(d *Deps) { d.Policies = r }
}
