package otel

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const defaultTraceID = "00000000000000000000000000000000"

type ctxKey int

const (
	tracerKey ctxKey = iota + 1
	traceIDKey
)

// GetTraceID returns the trace id from the current span context, falling
// back to the id stored by InjectTracing.
func GetTraceID(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return defaultTraceID
}

// InjectTracing stores the tracer in the context and makes sure a trace id
// is available for logging, even when the request is not sampled.
func InjectTracing(ctx context.Context, tracer trace.Tracer) context.Context {
	ctx = context.WithValue(ctx, tracerKey, tracer)

	traceID := trace.SpanFromContext(ctx).SpanContext().TraceID().String()
	if traceID == defaultTraceID {
		traceID = uuid.NewString()
	}
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTracer returns the tracer stored by InjectTracing.
func GetTracer(ctx context.Context) trace.Tracer {
	if v, ok := ctx.Value(tracerKey).(trace.Tracer); ok {
		return v
	}
	return noop.NewTracerProvider().Tracer("")
}
