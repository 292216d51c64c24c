package usecase

import (
	"context"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// SimpleJobExplorer is a simple implementation of the JobExplorer interface backed by a JobRepository.
type SimpleJobExplorer struct {
	jobRepository repository.JobRepository
}

var _ JobExplorer = (*SimpleJobExplorer)(nil)

// NewSimpleJobExplorer creates a new SimpleJobExplorer.
func NewSimpleJobExplorer(repo repository.JobRepository) *SimpleJobExplorer {
	return &SimpleJobExplorer{jobRepository: repo}
}

// GetJobExecution implements JobExplorer.
func (e *SimpleJobExplorer) GetJobExecution(ctx context.Context, executionID string) (*model.JobExecution, error) {
	return e.jobRepository.FindJobExecutionByID(ctx, executionID)
}

// GetJobExecutions implements JobExplorer.
func (e *SimpleJobExplorer) GetJobExecutions(ctx context.Context, instanceID string) ([]*model.JobExecution, error) {
	return e.jobRepository.FindJobExecutionsByJobInstance(ctx, instanceID)
}

// GetLastJobExecution implements JobExplorer.
func (e *SimpleJobExplorer) GetLastJobExecution(ctx context.Context, instanceID string) (*model.JobExecution, error) {
	return e.jobRepository.FindLastJobExecution(ctx, instanceID)
}

// GetJobInstance implements JobExplorer.
func (e *SimpleJobExplorer) GetJobInstance(ctx context.Context, instanceID string) (*model.JobInstance, error) {
	return e.jobRepository.FindJobInstanceByID(ctx, instanceID)
}

// GetJobInstances implements JobExplorer.
func (e *SimpleJobExplorer) GetJobInstances(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	return e.jobRepository.FindJobInstancesByJobName(ctx, jobName, start, count)
}

// GetJobNames implements JobExplorer.
func (e *SimpleJobExplorer) GetJobNames(ctx context.Context) ([]string, error) {
	return e.jobRepository.GetJobNames(ctx)
}

// FindRunningJobExecutions implements JobExplorer.
func (e *SimpleJobExplorer) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	return e.jobRepository.FindRunningJobExecutions(ctx, jobName)
}
