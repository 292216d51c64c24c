// Package metrics defines the recording and tracing abstractions used by jobs, steps and chunks.
// Backends live in infrastructure/metrics.
package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// MetricRecorder receives execution events from jobs, steps and chunk steps.
// Implementations must be safe for concurrent use; executions of different instances share one recorder.
type MetricRecorder interface {
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd is called once the final status and end time are set.
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	RecordStepStart(ctx context.Context, execution *model.StepExecution)
	// RecordStepEnd is called once the step counters are final.
	RecordStepEnd(ctx context.Context, execution *model.StepExecution)

	RecordItemRead(ctx context.Context, stepName string)
	RecordItemProcess(ctx context.Context, stepName string)
	// RecordItemFilter counts an item the processor dropped.
	RecordItemFilter(ctx context.Context, stepName string)
	// RecordItemWrite counts items handed to a writer in a committed chunk.
	RecordItemWrite(ctx context.Context, stepName string, count int)
	// RecordItemSkip counts a skipped item. reason is the failing phase: "read" or "process".
	RecordItemSkip(ctx context.Context, stepName string, reason string)
	// RecordItemRetry counts a retry. reason is "read", "process" or "write".
	RecordItemRetry(ctx context.Context, stepName string, reason string)

	RecordChunkCommit(ctx context.Context, stepName string, count int)
	RecordChunkRollback(ctx context.Context, stepName string)

	// RecordDuration observes a named duration such as "chunk_duration", labelled by tags.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}
