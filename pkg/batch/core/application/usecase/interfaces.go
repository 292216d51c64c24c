package usecase

import (
	"context"
	"errors"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

var (
	// ErrNoSuchJob means no job with the requested name is registered.
	ErrNoSuchJob = errors.New("no such job")
	// ErrInvalidJobParameters means the job's validator rejected the parameters.
	ErrInvalidJobParameters = errors.New("invalid job parameters")
	// ErrIllegalExecutionState means the execution's status does not allow the requested operation.
	ErrIllegalExecutionState = errors.New("illegal job execution state")
	// ErrNoIncrementer means StartNextInstance was called for a job without an incrementer.
	ErrNoIncrementer = errors.New("job has no parameters incrementer")
)

func init() {
	exception.RegisterErrorType("NoSuchJobError", ErrNoSuchJob)
	exception.RegisterErrorType("InvalidJobParametersError", ErrInvalidJobParameters)
	exception.RegisterErrorType("IllegalExecutionStateError", ErrIllegalExecutionState)
}

// JobLauncher launches a registered Job with JobParameters.
type JobLauncher interface {
	// Run creates an execution and runs it in the caller's goroutine. It returns the finished execution
	// together with the job's error, or a nil execution if the launch itself was rejected
	// (exception.ErrDuplicateRun, exception.ErrConcurrentRun, ErrNoSuchJob, ErrInvalidJobParameters).
	Run(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// Start creates an execution, runs it in a new goroutine and returns a snapshot of the STARTING execution.
	Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)
}

// JobOperator controls executions by ID.
type JobOperator interface {
	// Start launches jobName asynchronously.
	Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// Stop requests a running execution to stop after its current chunk.
	Stop(ctx context.Context, executionID string) error

	// Restart launches a new execution of the FAILED or STOPPED execution's instance.
	Restart(ctx context.Context, executionID string) (*model.JobExecution, error)

	// Abandon marks an execution that is no longer running as ABANDONED.
	Abandon(ctx context.Context, executionID string) error

	// StartNextInstance launches jobName with the parameters its incrementer derives from the newest instance.
	StartNextInstance(ctx context.Context, jobName string) (*model.JobExecution, error)
}

// JobExplorer is a read-only view of the run repository.
type JobExplorer interface {
	// GetJobExecution retrieves a JobExecution and its step executions by ID.
	GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error)

	// GetJobExecutions retrieves the executions of a JobInstance, newest first.
	GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error)

	// GetLastJobExecution retrieves the latest JobExecution for a given JobInstance.
	GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error)

	// GetJobInstance retrieves a JobInstance by its ID.
	GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error)

	// GetJobInstances pages through the instances of a job, newest first.
	GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error)

	// GetJobNames retrieves the names of all jobs that have run.
	GetJobNames(ctx context.Context) ([]string, error)

	// FindRunningJobExecutions returns the STARTING, STARTED or STOPPING executions of a job.
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}
