package resilience

import (
	"log/slog"
	"sync"

	"github.com/medvextract/medvextract-api/internal/platform/telemetry"
)

// Registry owns one Policy per call-site name. It is safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	policies map[string]*Policy
	logger   *slog.Logger
	metrics  *telemetry.Metrics
}

// NewRegistry creates a Registry whose policies use cfg. Zero fields take the
// values of DefaultConfig.
func NewRegistry(cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg.withDefaults(),
		policies: make(map[string]*Policy),
		logger:   logger.With("component", "resilience"),
		metrics:  metrics,
	}
}

// Policy returns the policy for name, creating it on first use. The
// classifier is only applied on creation; nil uses DefaultClassifier.
func (r *Registry) Policy(name string, classify Classifier) *Policy {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.policies[name]; ok {
		return p
	}
	p := newPolicy(name, r.cfg, classify, r.logger, r.metrics)
	r.policies[name] = p
	return p
}

// Config returns the settings applied to new policies.
func (r *Registry) Config() Config {
	return r.cfg
}

// States returns the breaker state of every registered call site.
func (r *Registry) States() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]string, len(r.policies))
	for name, p := range r.policies {
		out[name] = p.State()
	}
	return out
}

// Reset returns every breaker to closed with empty counts. Policies keep
// their identity, so callers holding a *Policy see the reset.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.policies {
		p.reset()
	}
}
