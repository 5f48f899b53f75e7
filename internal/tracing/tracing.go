// Package tracing wraps OpenTelemetry span handling. Without a configured
// provider the global no-op tracer is used.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "variant-merger"

var tracer trace.Tracer

// SetTracer overrides the tracer used for new spans
func SetTracer(t trace.Tracer) {
	tracer = t
}

func current() trace.Tracer {
	if tracer != nil {
		return tracer
	}
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a new span with the given name
func StartSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return current().Start(ctx, spanName, trace.WithAttributes(attrs...))
}

// Fail records err on the span and marks it errored
func Fail(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// TraceID returns the active trace id, or "" when no span is recording
func TraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if !span.SpanContext().IsValid() {
		return ""
	}
	return span.SpanContext().TraceID().String()
}
