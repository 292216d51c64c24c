// Package port defines the core interfaces (ports) of the batch engine.
// Readers, processors, writers, steps and jobs are plugged into the engine through these interfaces.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// ErrNoMoreItems is returned by ItemReader.Read at the end of the stream.
var ErrNoMoreItems = errors.New("no more items to read")

// ErrItemFiltered may be returned by ItemProcessor.Process to drop an item without error.
var ErrItemFiltered = errors.New("item filtered")

// Job is an executable batch job.
type Job interface {
	// Run executes the job's steps for jobExecution. The final status is recorded on jobExecution.
	//
	// Parameters:
	//   ctx: The context for the operation. Cancelling it stops the job between chunks.
	//   jobExecution: The current JobExecution instance.
	//   jobParameters: The job parameters for the execution.
	//
	// Returns:
	//   error: An error if the job execution fails.
	Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) error
	// JobName returns the logical name of the job.
	JobName() string
}

// JobRunner drives a Job for one JobExecution and persists its final state.
type JobRunner interface {
	Run(ctx context.Context, job Job, jobExecution *model.JobExecution) error
}

// Step is a single step executed within a job.
type Step interface {
	// Execute executes the step. Transaction boundaries are owned by the step implementation.
	//
	// Parameters:
	//   ctx: The context for the operation.
	//   jobExecution: The current JobExecution instance.
	//   stepExecution: The current StepExecution instance.
	//
	// Returns:
	//   error: An error if the step encounters a fatal issue or exceeds its retry or skip limits.
	Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error
	// StepName returns the logical name of the step.
	StepName() string
}

// ItemReader is the source of a chunk step.
// O is the type of item to be read.
type ItemReader[O any] interface {
	// Open opens resources and restores the read position from ec.
	// Failures are resource errors and prevent the step from starting.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Read reads the next item. Returns ErrNoMoreItems if no more items are available.
	Read(ctx context.Context) (O, error)
	// Close releases resources.
	Close(ctx context.Context) error
	// SetExecutionContext replaces the reader state with ec.
	SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error
	// GetExecutionContext returns the reader state to persist after each commit.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// ItemProcessor transforms an input item into an output item.
// I is the type of input item, O is the type of output item.
//
// Returning a nil pointer (or ErrItemFiltered) drops the item. Process may be invoked more than once for
// the same item when it is retried, so it must not have side effects that cannot be repeated.
type ItemProcessor[I, O any] interface {
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter is the sink of a chunk step.
// I is the type of item to be written.
type ItemWriter[I any] interface {
	// Open opens resources and restores state from ec.
	Open(ctx context.Context, ec model.ExecutionContext) error
	// Write persists one chunk of items within tx. A failure rolls back the whole chunk.
	Write(ctx context.Context, tx tx.Tx, items []I) error
	// Close releases resources.
	Close(ctx context.Context) error
	// SetExecutionContext replaces the writer state with ec.
	SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error
	// GetExecutionContext returns the writer state to persist after each commit.
	GetExecutionContext(ctx context.Context) (model.ExecutionContext, error)
}

// Tasklet is a step that performs a single operation inside one transaction.
// The transaction is available through tx.FromContext.
type Tasklet interface {
	// Execute executes the business logic of the Tasklet.
	// Returns an ExitStatus such as ExitStatusCompleted upon success.
	Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error)
	// Close releases resources.
	Close(ctx context.Context) error
}

// JobParametersValidator checks parameters before an execution is created.
type JobParametersValidator interface {
	Validate(params model.JobParameters) error
}

// JobParametersIncrementer is an interface for automatically incrementing JobParameters.
type JobParametersIncrementer interface {
	// GetNext generates the next JobParameters based on the current parameters.
	GetNext(params model.JobParameters) model.JobParameters
}

// JobExecutionListener is an interface for handling job execution events.
type JobExecutionListener interface {
	// BeforeJob is called just before a job execution starts.
	BeforeJob(ctx context.Context, jobExecution *model.JobExecution)
	// AfterJob is called after a job execution completes (regardless of success or failure).
	AfterJob(ctx context.Context, jobExecution *model.JobExecution)
}

// StepExecutionListener is an interface for handling step execution events.
type StepExecutionListener interface {
	// BeforeStep is called just before a step execution starts.
	BeforeStep(ctx context.Context, stepExecution *model.StepExecution)
	// AfterStep is called after a step execution completes (regardless of success or failure).
	AfterStep(ctx context.Context, stepExecution *model.StepExecution)
}

// ChunkListener is an interface for handling chunk processing events.
type ChunkListener interface {
	// BeforeChunk is called after the chunk transaction has begun.
	BeforeChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunk is called after the chunk has committed.
	AfterChunk(ctx context.Context, stepExecution *model.StepExecution)
	// AfterChunkError is called after the chunk has rolled back.
	AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error)
}

// SkipListener is notified of items dropped by the fault policy.
type SkipListener interface {
	// OnSkipRead is called after a read failure was skipped.
	OnSkipRead(ctx context.Context, err error)
	// OnSkipProcess is called after an item was skipped during processing.
	OnSkipProcess(ctx context.Context, item interface{}, err error)
}

// RetryItemListener is an interface for handling retry events.
type RetryItemListener interface {
	// OnRetryRead is called before a read is retried.
	OnRetryRead(ctx context.Context, err error)
	// OnRetryProcess is called before an item is processed again.
	OnRetryProcess(ctx context.Context, item interface{}, err error)
	// OnRetryWrite is called before a rolled back chunk is written again.
	OnRetryWrite(ctx context.Context, items []interface{}, err error)
}

// ItemReadListener is an interface for handling item read events.
type ItemReadListener interface {
	OnReadError(ctx context.Context, err error)
}

// ItemProcessListener is an interface for handling item process events.
type ItemProcessListener interface {
	OnProcessError(ctx context.Context, item interface{}, err error)
}

// ItemWriteListener is an interface for handling chunk write events.
type ItemWriteListener interface {
	OnWriteError(ctx context.Context, items []interface{}, err error)
}

type contextKey string

// StepExecutionKey is the context key under which the running StepExecution is stored.
const StepExecutionKey contextKey = "stepExecution"

// GetContextWithStepExecution stores a StepExecution in the Context.
func GetContextWithStepExecution(ctx context.Context, se *model.StepExecution) context.Context {
	return context.WithValue(ctx, StepExecutionKey, se)
}

// GetStepExecutionFromContext retrieves a StepExecution from the Context. Returns nil if not found.
func GetStepExecutionFromContext(ctx context.Context) *model.StepExecution {
	if se, ok := ctx.Value(StepExecutionKey).(*model.StepExecution); ok {
		return se
	}
	return nil
}
