package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"marketfuse/pkg/contracts/domain"
)

const (
	// TracerName identifies pipeline spans.
	TracerName = "marketfuse.pipeline"
	// MeterName identifies pipeline instruments.
	MeterName = "marketfuse.pipeline"
)

// Tracer provides OpenTelemetry instrumentation for pipeline operations.
// A nil *Tracer is a valid no-op, so the pure engine stays testable
// without an initialized SDK.
type Tracer struct {
	tracer trace.Tracer

	normalizationsTotal   metric.Int64Counter
	normalizationDuration metric.Float64Histogram
	discrepanciesTotal    metric.Int64Counter
	fusionConflictsTotal  metric.Int64Counter
	batchItems            metric.Int64Histogram
}

// NewTracer creates the pipeline tracer and its instruments on the given
// meter.
func NewTracer(meter metric.Meter) (*Tracer, error) {
	t := &Tracer{tracer: otel.Tracer(TracerName)}

	var err error
	if t.normalizationsTotal, err = meter.Int64Counter(
		"marketfuse_normalizations_total",
		metric.WithDescription("Total normalization calls by data type and status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create normalizations counter: %w", err)
	}
	if t.normalizationDuration, err = meter.Float64Histogram(
		"marketfuse_normalization_duration_seconds",
		metric.WithDescription("Normalization call duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}
	if t.discrepanciesTotal, err = meter.Int64Counter(
		"marketfuse_discrepancies_total",
		metric.WithDescription("Discrepancies detected by validation and fusion"),
	); err != nil {
		return nil, fmt.Errorf("failed to create discrepancies counter: %w", err)
	}
	if t.fusionConflictsTotal, err = meter.Int64Counter(
		"marketfuse_fusion_conflicts_total",
		metric.WithDescription("Cross-source conflicts settled by the fusion engine"),
	); err != nil {
		return nil, fmt.Errorf("failed to create fusion conflicts counter: %w", err)
	}
	if t.batchItems, err = meter.Int64Histogram(
		"marketfuse_batch_items",
		metric.WithDescription("Items per batch normalization run"),
	); err != nil {
		return nil, fmt.Errorf("failed to create batch histogram: %w", err)
	}
	return t, nil
}

// StartNormalization opens a span for one normalization call.
func (t *Tracer) StartNormalization(ctx context.Context, dataType domain.DataType, source string) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, fmt.Sprintf("pipeline.normalize.%s", dataType),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.data_type", string(dataType)),
			attribute.String("pipeline.source", source),
		),
	)
}

// RecordNormalization closes out one normalization call on the span and
// the instruments.
func (t *Tracer) RecordNormalization(ctx context.Context, span trace.Span, dataType domain.DataType, success bool, discrepancies int, duration time.Duration) {
	if t == nil {
		return
	}
	status := "success"
	if !success {
		status = "failure"
	}
	attrs := metric.WithAttributes(
		attribute.String("data_type", string(dataType)),
		attribute.String("status", status),
	)
	t.normalizationsTotal.Add(ctx, 1, attrs)
	t.normalizationDuration.Record(ctx, duration.Seconds(), attrs)
	if discrepancies > 0 {
		t.discrepanciesTotal.Add(ctx, int64(discrepancies),
			metric.WithAttributes(attribute.String("data_type", string(dataType))))
	}

	span.SetAttributes(
		attribute.Bool("pipeline.success", success),
		attribute.Int("pipeline.discrepancies", discrepancies),
		attribute.Float64("pipeline.duration_seconds", duration.Seconds()),
	)
	if success {
		span.SetStatus(codes.Ok, "normalization complete")
	} else {
		span.SetStatus(codes.Error, "normalization failed")
	}
	span.End()
}

// RecordFusion accounts one fusion call.
func (t *Tracer) RecordFusion(ctx context.Context, field string, conflicts int) {
	if t == nil {
		return
	}
	if conflicts > 0 {
		t.fusionConflictsTotal.Add(ctx, int64(conflicts),
			metric.WithAttributes(attribute.String("field", field)))
	}
}

// RecordBatch accounts one batch run.
func (t *Tracer) RecordBatch(ctx context.Context, size int) {
	if t == nil {
		return
	}
	t.batchItems.Record(ctx, int64(size))
}
