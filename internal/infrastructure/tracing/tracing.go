// Package tracing wraps the otel tracer the kernel uses to emit spans
// around expansion, compilation, and file-move operations.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/sciflow/kernel"

// Tracer returns the kernel's named tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// StartSpan starts a span named op under the kernel's tracer and returns
// the derived context plus the span, so callers can `defer span.End()`.
func StartSpan(ctx context.Context, op string, attrs ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, op, attrs...)
}
