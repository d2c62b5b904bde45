package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is the instrumentation scope of the pipeline's metrics.
const MeterName = "github.com/medvextract/medvextract-api"

// Cache lookup outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Metrics holds the pipeline's metric instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	submissions        metric.Int64Counter
	cacheLookups       metric.Int64Counter
	jobOutcomes        metric.Int64Counter
	extractionAttempts metric.Int64Counter
	extractionDuration metric.Float64Histogram
	breakerTransitions metric.Int64Counter
}

// NewMetrics creates the instruments from mp. A nil provider uses the global one.
func NewMetrics(mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(MeterName)
	m := &Metrics{}

	var err error
	m.submissions, err = meter.Int64Counter(
		"medvextract.submissions",
		metric.WithDescription("Accepted work requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.submissions, _ = meter.Int64Counter("medvextract.submissions")
	}

	m.cacheLookups, err = meter.Int64Counter(
		"medvextract.cache.lookups",
		metric.WithDescription("Result cache lookups by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		m.cacheLookups, _ = meter.Int64Counter("medvextract.cache.lookups")
	}

	m.jobOutcomes, err = meter.Int64Counter(
		"medvextract.jobs.finished",
		metric.WithDescription("Jobs reaching a terminal state"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		m.jobOutcomes, _ = meter.Int64Counter("medvextract.jobs.finished")
	}

	m.extractionAttempts, err = meter.Int64Counter(
		"medvextract.extraction.attempts",
		metric.WithDescription("Calls made to the extraction provider"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.extractionAttempts, _ = meter.Int64Counter("medvextract.extraction.attempts")
	}

	m.extractionDuration, err = meter.Float64Histogram(
		"medvextract.extraction.duration",
		metric.WithDescription("Duration of a protected call including retries"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		m.extractionDuration, _ = meter.Float64Histogram("medvextract.extraction.duration")
	}

	m.breakerTransitions, err = meter.Int64Counter(
		"medvextract.breaker.transitions",
		metric.WithDescription("Circuit breaker state changes"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		m.breakerTransitions, _ = meter.Int64Counter("medvextract.breaker.transitions")
	}

	return m
}

// NewNoopMetrics creates metrics that record nothing.
func NewNoopMetrics() *Metrics {
	return NewMetrics(noop.NewMeterProvider())
}

// RecordSubmission counts an accepted work request.
func (m *Metrics) RecordSubmission(ctx context.Context, cached bool) {
	if m == nil {
		return
	}
	m.submissions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", cached)))
}

// RecordCacheLookup counts a cache lookup with outcome hit, miss or error.
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind, outcome string) {
	if m == nil {
		return
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("cache.kind", kind),
		attribute.String("cache.outcome", outcome),
	))
}

// RecordJobFinished counts a job reaching a terminal status.
func (m *Metrics) RecordJobFinished(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.jobOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("job.status", status)))
}

// RecordAttempt counts one attempt of a protected call.
func (m *Metrics) RecordAttempt(ctx context.Context, callSite string, success bool) {
	if m == nil {
		return
	}
	m.extractionAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("call_site", callSite),
		attribute.Bool("success", success),
	))
}

// RecordCallDuration records the wall time of a protected call in milliseconds.
func (m *Metrics) RecordCallDuration(ctx context.Context, callSite string, ms float64) {
	if m == nil {
		return
	}
	m.extractionDuration.Record(ctx, ms, metric.WithAttributes(attribute.String("call_site", callSite)))
}

// RecordBreakerTransition counts a circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, callSite, from, to string) {
	if m == nil {
		return
	}
	m.breakerTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("call_site", callSite),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
