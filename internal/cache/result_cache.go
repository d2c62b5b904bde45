package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/medvextract/medvextract-api/internal/domain"
	"github.com/medvextract/medvextract-api/internal/platform/telemetry"
	"github.com/medvextract/medvextract-api/internal/redact"
)

// Default time-to-live values.
const (
	DefaultTTL        = 24 * time.Hour
	DefaultReceiptTTL = time.Hour
)

const (
	resultKeyPrefix  = "result:"
	receiptKeyPrefix = "receipt:"

	kindResult  = "result"
	kindReceipt = "receipt"
)

// Config holds ResultCache settings.
type Config struct {
	// TTL is the lifetime of a cached result.
	TTL time.Duration

	// ReceiptTTL is the lifetime of a job-id receipt issued on a cache hit.
	ReceiptTTL time.Duration
}

// ResultCache maps fingerprints to sanitized results and job ids issued on
// cache hits to fingerprints. It never returns backend errors.
type ResultCache struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// NewResultCache creates a ResultCache over backend. Zero TTLs use the defaults.
func NewResultCache(backend Backend, cfg Config, logger *slog.Logger, metrics *telemetry.Metrics) *ResultCache {
	if backend == nil {
		backend = NopBackend{}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.ReceiptTTL <= 0 {
		cfg.ReceiptTTL = DefaultReceiptTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ResultCache{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("component", "result_cache"),
		metrics: metrics,
	}
}

// Get returns the cached result for fp. Backend failures and corrupt entries
// are reported as misses.
func (c *ResultCache) Get(ctx context.Context, fp domain.Fingerprint) (json.RawMessage, bool) {
	data, ok := c.lookup(ctx, kindResult, resultKeyPrefix+fp.String())
	if !ok {
		return nil, false
	}
	if !json.Valid(data) {
		c.logger.WarnContext(ctx, "discarding corrupt cache entry",
			"fingerprint", fp.Short())
		return nil, false
	}
	return json.RawMessage(data), true
}

// Put stores result under fp for the configured TTL, overwriting any previous
// entry. Failures are logged and swallowed.
func (c *ResultCache) Put(ctx context.Context, fp domain.Fingerprint, result json.RawMessage) {
	c.store(ctx, resultKeyPrefix+fp.String(), result, c.cfg.TTL, "fingerprint", fp.Short())
}

// PutReceipt records that jobID was answered from the cache entry fp.
func (c *ResultCache) PutReceipt(ctx context.Context, jobID uuid.UUID, fp domain.Fingerprint) {
	c.store(ctx, receiptKeyPrefix+jobID.String(), []byte(fp), c.cfg.ReceiptTTL, "job_id", jobID.String())
}

// Receipt returns the fingerprint a cache-hit job id was answered from.
func (c *ResultCache) Receipt(ctx context.Context, jobID uuid.UUID) (domain.Fingerprint, bool) {
	data, ok := c.lookup(ctx, kindReceipt, receiptKeyPrefix+jobID.String())
	if !ok || len(data) == 0 {
		return "", false
	}
	return domain.Fingerprint(data), true
}

// TTL returns the configured result lifetime.
func (c *ResultCache) TTL() time.Duration {
	return c.cfg.TTL
}

// Close closes the backend.
func (c *ResultCache) Close() error {
	return c.backend.Close()
}

func (c *ResultCache) lookup(ctx context.Context, kind, key string) ([]byte, bool) {
	data, err := c.backend.Get(ctx, key)
	switch {
	case err == nil:
		c.metrics.RecordCacheLookup(ctx, kind, telemetry.CacheHit)
		return data, true
	case errors.Is(err, ErrMiss):
		c.metrics.RecordCacheLookup(ctx, kind, telemetry.CacheMiss)
		return nil, false
	default:
		c.metrics.RecordCacheLookup(ctx, kind, telemetry.CacheError)
		c.logger.WarnContext(ctx, "cache read failed, treating as miss",
			"kind", kind,
			"error", redact.Error(err))
		return nil, false
	}
}

func (c *ResultCache) store(ctx context.Context, key string, value []byte, ttl time.Duration, attrs ...any) {
	if err := c.backend.Set(ctx, key, value, ttl); err != nil {
		c.logger.WarnContext(ctx, "cache write failed, continuing without cache",
			append(attrs, "error", redact.Error(err))...)
	}
}
