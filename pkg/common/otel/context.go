package otel

import (
	"context"

	"go.opentelemetry.io/otel/trace"
)

// GetTraceID extracts the trace id from the span on the context, returning
// the zero trace id when no span is recording. Log lines carry this so a
// task's ticks can be stitched together across scheduler passes.
func GetTraceID(ctx context.Context) string {
	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return "00000000000000000000000000000000"
}
