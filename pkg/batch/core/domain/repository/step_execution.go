package repository

import (
	"context"
	"errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// ErrStepExecutionNotFound is the error returned when a StepExecution is not found.
var ErrStepExecutionNotFound = errors.New("step execution not found")

func init() {
	exception.RegisterErrorType("ErrStepExecutionNotFound", ErrStepExecutionNotFound)
}

// StepExecution defines persistence of step executions.
type StepExecution interface {
	// SaveStepExecution persists a new StepExecution.
	SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// UpdateStepExecution persists counters, status and context of an existing StepExecution.
	UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error

	// FindStepExecutionByID finds a StepExecution by its ID.
	FindStepExecutionByID(ctx context.Context, executionID string) (*model.StepExecution, error)

	// FindStepExecutionsByJobExecution returns the step executions of a job execution in start order.
	FindStepExecutionsByJobExecution(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error)

	// FindLastStepExecution returns the newest execution of stepName across all executions of a job instance.
	FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*model.StepExecution, error)
}
