package exporter

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// TracerWrapper wraps an OpenTelemetry tracer so that span creation is
// always safe, even when tracing is disabled. When no TracerProvider is
// injected it falls back to a noop tracer, which costs nothing per span.
type TracerWrapper struct {
	tracer trace.Tracer
}

// NewTracerWrapper creates a wrapper around a tracer from the given
// provider. A nil provider yields a noop tracer.
func NewTracerWrapper(tp trace.TracerProvider, name string) *TracerWrapper {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	return &TracerWrapper{tracer: tp.Tracer(name)}
}

// StartSpan starts a span with the given operation name and span kind.
// The returned span is never nil; callers can defer span.End()
// unconditionally.
func (t *TracerWrapper) StartSpan(ctx context.Context, operation string, kind trace.SpanKind) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, operation, trace.WithSpanKind(kind))
}
