package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/medvextract/medvextract-api/internal/redact"
)

// TracerName is the instrumentation scope of the pipeline's spans.
const TracerName = "github.com/medvextract/medvextract-api"

// Tracer wraps an OpenTelemetry tracer with pipeline span helpers.
// A nil *Tracer starts no-op spans.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer from tp. A nil provider uses the global one.
func NewTracer(tp trace.TracerProvider) *Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Tracer{tracer: tp.Tracer(TracerName)}
}

// NewNoopTracer creates a tracer that does nothing.
func NewNoopTracer() *Tracer {
	return &Tracer{tracer: tracenoop.NewTracerProvider().Tracer("")}
}

// StartSpan starts a span with the given name and attributes.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil || t.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan marks span failed when err is non-nil and ends it. The status
// description is redacted.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, redact.Error(err))
	}
	span.End()
}

// JobAttr returns the job id attribute.
func JobAttr(id string) attribute.KeyValue {
	return attribute.String("medvextract.job_id", id)
}

// FingerprintAttr returns the fingerprint attribute.
func FingerprintAttr(fp string) attribute.KeyValue {
	return attribute.String("medvextract.fingerprint", fp)
}
