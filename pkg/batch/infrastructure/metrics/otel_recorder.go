package metrics

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// OpenTelemetryRecorder records batch metrics as OpenTelemetry instruments.
type OpenTelemetryRecorder struct {
	jobDuration  otelmetric.Float64Histogram
	jobs         otelmetric.Int64Counter
	jobsRunning  otelmetric.Int64UpDownCounter
	stepDuration otelmetric.Float64Histogram
	steps        otelmetric.Int64Counter
	items        otelmetric.Int64Counter
	skips        otelmetric.Int64Counter
	retries      otelmetric.Int64Counter
	chunks       otelmetric.Int64Counter
	operations   otelmetric.Float64Histogram
}

var _ metrics.MetricRecorder = (*OpenTelemetryRecorder)(nil)

// NewOpenTelemetryRecorder creates the instruments on a meter of provider.
func NewOpenTelemetryRecorder(provider otelmetric.MeterProvider) (*OpenTelemetryRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OpenTelemetryRecorder{}
	var errs *multierror.Error
	var err error

	r.jobDuration, err = meter.Float64Histogram("batch.job.duration", otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Duration of batch job executions."))
	errs = multierror.Append(errs, err)
	r.jobs, err = meter.Int64Counter("batch.job.executions", otelmetric.WithDescription("Finished job executions."))
	errs = multierror.Append(errs, err)
	r.jobsRunning, err = meter.Int64UpDownCounter("batch.job.running", otelmetric.WithDescription("Running job executions."))
	errs = multierror.Append(errs, err)
	r.stepDuration, err = meter.Float64Histogram("batch.step.duration", otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Duration of batch step executions."))
	errs = multierror.Append(errs, err)
	r.steps, err = meter.Int64Counter("batch.step.executions", otelmetric.WithDescription("Finished step executions."))
	errs = multierror.Append(errs, err)
	r.items, err = meter.Int64Counter("batch.items", otelmetric.WithDescription("Items by operation (read, process, filter, write)."))
	errs = multierror.Append(errs, err)
	r.skips, err = meter.Int64Counter("batch.item.skips", otelmetric.WithDescription("Skipped items by phase."))
	errs = multierror.Append(errs, err)
	r.retries, err = meter.Int64Counter("batch.item.retries", otelmetric.WithDescription("Retries by phase."))
	errs = multierror.Append(errs, err)
	r.chunks, err = meter.Int64Counter("batch.chunks", otelmetric.WithDescription("Chunks by outcome (commit, rollback)."))
	errs = multierror.Append(errs, err)
	r.operations, err = meter.Float64Histogram("batch.operation.duration", otelmetric.WithUnit("s"),
		otelmetric.WithDescription("Duration of named operations."))
	errs = multierror.Append(errs, err)

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return r, nil
}

func stepAttrs(ctx context.Context, stepName string, extra ...attribute.KeyValue) otelmetric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("job_name", jobNameFrom(ctx)),
		attribute.String("step_name", stepName),
	}, extra...)
	return otelmetric.WithAttributes(attrs...)
}

func (r *OpenTelemetryRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobsRunning.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("job_name", execution.JobName)))
}

func (r *OpenTelemetryRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobsRunning.Add(ctx, -1, otelmetric.WithAttributes(attribute.String("job_name", execution.JobName)))
	attrs := otelmetric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("status", execution.Status.String()),
	)
	r.jobs.Add(ctx, 1, attrs)
	r.jobDuration.Record(ctx, execution.Duration().Seconds(), attrs)
}

func (r *OpenTelemetryRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

func (r *OpenTelemetryRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	attrs := otelmetric.WithAttributes(
		attribute.String("job_name", stepJobName(execution)),
		attribute.String("step_name", execution.StepName),
		attribute.String("status", execution.Status.String()),
	)
	r.steps.Add(ctx, 1, attrs)
	if execution.EndTime != nil {
		r.stepDuration.Record(ctx, execution.EndTime.Sub(execution.StartTime).Seconds(), attrs)
	}
}

func (r *OpenTelemetryRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.items.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("operation", "read")))
}

func (r *OpenTelemetryRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.items.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("operation", "process")))
}

func (r *OpenTelemetryRecorder) RecordItemFilter(ctx context.Context, stepName string) {
	r.items.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("operation", "filter")))
}

func (r *OpenTelemetryRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.items.Add(ctx, int64(count), stepAttrs(ctx, stepName, attribute.String("operation", "write")))
}

func (r *OpenTelemetryRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.skips.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("phase", reason)))
}

func (r *OpenTelemetryRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.retries.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("phase", reason)))
}

func (r *OpenTelemetryRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunks.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("outcome", "commit")))
}

func (r *OpenTelemetryRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.chunks.Add(ctx, 1, stepAttrs(ctx, stepName, attribute.String("outcome", "rollback")))
}

func (r *OpenTelemetryRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("name", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operations.Record(ctx, duration.Seconds(), otelmetric.WithAttributes(attrs...))
}
