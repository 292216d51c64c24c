package repository

import (
	"context"
	"errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// ErrJobExecutionNotFound is the error returned when a JobExecution is not found.
var ErrJobExecutionNotFound = errors.New("job execution not found")

func init() {
	exception.RegisterErrorType("ErrJobExecutionNotFound", ErrJobExecutionNotFound)
}

// JobExecution defines persistence of job executions.
type JobExecution interface {
	// CreateJobExecution atomically finds or creates the instance for (jobName, params) and adds a new
	// STARTING execution to it. The check and the insert form one serialized operation.
	// It fails with exception.ErrDuplicateRun if an execution of the instance has COMPLETED and with
	// exception.ErrConcurrentRun if one is STARTING, STARTED or STOPPING.
	CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error)

	// UpdateJobExecution persists status, times, failures and context of an existing execution.
	// It fails with exception.ErrOptimisticLockingFailure when the stored version differs.
	UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error

	// FindJobExecutionByID finds a JobExecution and its StepExecutions.
	FindJobExecutionByID(ctx context.Context, executionID string) (*model.JobExecution, error)

	// FindJobExecutionsByJobInstance returns the executions of an instance, newest first.
	FindJobExecutionsByJobInstance(ctx context.Context, jobInstanceID string) ([]*model.JobExecution, error)

	// FindLastJobExecution returns the newest execution of an instance.
	FindLastJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error)

	// FindRunningJobExecutions returns the executions of a job in a running status.
	FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error)
}
