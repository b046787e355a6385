package operations

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/errors"
	"github.com/ABHINAVPRIYADARSHI/eway-bill-processing/internal/infrastructure"
)

const (
	TracerName = "ewbworker.operation"
)

// RunTracer instruments job runs with spans and stage metrics.
type RunTracer struct {
	tracer  trace.Tracer
	metrics *infrastructure.PipelineMetrics
}

// NewRunTracer uses the global tracer provider. metrics may be nil.
func NewRunTracer(metrics *infrastructure.PipelineMetrics) *RunTracer {
	return &RunTracer{
		tracer:  otel.Tracer(TracerName),
		metrics: metrics,
	}
}

// TraceRun creates the span for a whole job run
func (rt *RunTracer) TraceRun(ctx context.Context, runID string, taxpayers int) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, "operation.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.taxpayers", taxpayers),
		),
	)
}

// TraceStage creates a span for one stage of one taxpayer
func (rt *RunTracer) TraceStage(ctx context.Context, stage, gstin string) (context.Context, trace.Span) {
	return rt.tracer.Start(ctx, fmt.Sprintf("operation.stage.%s", stage),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("stage.id", stage),
			attribute.String("taxpayer.gstin", gstin),
		),
	)
}

// RecordStageCompletion closes out a stage span and records its duration.
// Expected-empty outcomes count as successes.
func (rt *RunTracer) RecordStageCompletion(ctx context.Context, span trace.Span, stage string, duration time.Duration, err error) {
	failed := err != nil && apperrors.GetErrorType(err) != apperrors.ErrorTypeExpectedEmpty

	span.SetAttributes(attribute.Float64("stage.duration_seconds", duration.Seconds()))
	if failed {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stage failed")
	} else {
		span.SetStatus(codes.Ok, "stage completed")
	}
	rt.metrics.RecordStage(ctx, stage, duration.Seconds(), failed)
}
