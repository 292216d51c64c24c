package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder discards every event. Steps and jobs fall back to it when no recorder is given.
type NoOpMetricRecorder struct{}

var _ MetricRecorder = NoOpMetricRecorder{}

func NewNoOpMetricRecorder() MetricRecorder { return NoOpMetricRecorder{} }

func (NoOpMetricRecorder) RecordJobStart(context.Context, *model.JobExecution)   {}
func (NoOpMetricRecorder) RecordJobEnd(context.Context, *model.JobExecution)     {}
func (NoOpMetricRecorder) RecordStepStart(context.Context, *model.StepExecution) {}
func (NoOpMetricRecorder) RecordStepEnd(context.Context, *model.StepExecution)   {}
func (NoOpMetricRecorder) RecordItemRead(context.Context, string)                {}
func (NoOpMetricRecorder) RecordItemProcess(context.Context, string)             {}
func (NoOpMetricRecorder) RecordItemFilter(context.Context, string)              {}
func (NoOpMetricRecorder) RecordItemWrite(context.Context, string, int)          {}
func (NoOpMetricRecorder) RecordItemSkip(context.Context, string, string)        {}
func (NoOpMetricRecorder) RecordItemRetry(context.Context, string, string)       {}
func (NoOpMetricRecorder) RecordChunkCommit(context.Context, string, int)        {}
func (NoOpMetricRecorder) RecordChunkRollback(context.Context, string)           {}

func (NoOpMetricRecorder) RecordDuration(context.Context, string, time.Duration, map[string]string) {}

// NoOpTracer returns contexts unchanged and records nothing.
type NoOpTracer struct{}

var _ Tracer = NoOpTracer{}

func NewNoOpTracer() Tracer { return NoOpTracer{} }

func (NoOpTracer) StartJobSpan(ctx context.Context, _ *model.JobExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) StartStepSpan(ctx context.Context, _ *model.StepExecution) (context.Context, func()) {
	return ctx, func() {}
}

func (NoOpTracer) RecordError(context.Context, string, error)                  {}
func (NoOpTracer) RecordEvent(context.Context, string, map[string]interface{}) {}
