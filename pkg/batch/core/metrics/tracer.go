package metrics

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// Tracer opens one span per job execution and one child span per step execution.
// Chunk outcomes are attached to the step span as events.
type Tracer interface {
	// StartJobSpan returns ctx carrying the job span and the function that ends it.
	StartJobSpan(ctx context.Context, execution *model.JobExecution) (context.Context, func())
	// StartStepSpan returns ctx carrying the step span and the function that ends it.
	// ctx is normally the one returned by StartJobSpan.
	StartStepSpan(ctx context.Context, execution *model.StepExecution) (context.Context, func())
	// RecordError marks the span in ctx as failed. module names the failing part ("reader", "writer", ...).
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent adds an event such as "chunk.commit" to the span in ctx.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
