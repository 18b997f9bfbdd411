package orchestrator

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// startRetrySpan wraps a retry dispatch in a subagent.retry span. With
// no real TracerProvider installed (the default, per SPEC_FULL §4.7)
// this is a no-op; cmd/agentrund installs a live provider only when
// [telemetry] protocol = "otel".
func (e *Engine) startRetrySpan(ctx context.Context, runID string, attempt int) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "subagent.retry",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("retry_count", attempt),
		),
	)
}

// startVerifySpan wraps a verification pass in a subagent.verify span.
func (e *Engine) startVerifySpan(ctx context.Context, runID string, attempt int) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "subagent.verify",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("retry_count", attempt),
		),
	)
}
