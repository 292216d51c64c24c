package usecase

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// incrementable is implemented by jobs that carry a JobParametersIncrementer.
type incrementable interface {
	Incrementer() port.JobParametersIncrementer
}

// DefaultJobOperator is the default implementation of the JobOperator interface.
type DefaultJobOperator struct {
	jobRepository repository.JobRepository
	registry      *JobRegistry
	launcher      *SimpleJobLauncher
}

var _ JobOperator = (*DefaultJobOperator)(nil)

// NewDefaultJobOperator creates a new DefaultJobOperator.
func NewDefaultJobOperator(repo repository.JobRepository, registry *JobRegistry, launcher *SimpleJobLauncher) *DefaultJobOperator {
	return &DefaultJobOperator{
		jobRepository: repo,
		registry:      registry,
		launcher:      launcher,
	}
}

// Start implements JobOperator.
func (o *DefaultJobOperator) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	return o.launcher.Start(ctx, jobName, params)
}

// Stop implements JobOperator. The stored execution is marked STOPPING and, when it runs in this process,
// its context is cancelled so that the current step ends after its in-flight chunk.
func (o *DefaultJobOperator) Stop(ctx context.Context, executionID string) error {
	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}
	if !jobExecution.Status.IsRunning() {
		return fmt.Errorf("%w: JobExecution (ID: %s) is %s and cannot be stopped", ErrIllegalExecutionState, executionID, jobExecution.Status)
	}

	if jobExecution.Status != model.BatchStatusStopping {
		if err := o.markStopping(ctx, jobExecution); err != nil {
			return err
		}
	}
	if !o.launcher.Stop(executionID) {
		logger.Warnf("JobExecution (ID: %s) is not running in this process; it was only marked STOPPING.", executionID)
	}
	return nil
}

// markStopping writes STOPPING. A concurrent write by the runner is resolved by reloading once.
func (o *DefaultJobOperator) markStopping(ctx context.Context, jobExecution *model.JobExecution) error {
	for attempt := 0; ; attempt++ {
		jobExecution.MarkAsStopping()
		err := o.jobRepository.UpdateJobExecution(ctx, jobExecution)
		if err == nil || !exception.IsOptimisticLockingFailure(err) || attempt > 0 {
			return err
		}
		reloaded, findErr := o.jobRepository.FindJobExecutionByID(ctx, jobExecution.ID)
		if findErr != nil {
			return findErr
		}
		if !reloaded.Status.IsRunning() {
			return fmt.Errorf("%w: JobExecution (ID: %s) finished as %s", ErrIllegalExecutionState, jobExecution.ID, reloaded.Status)
		}
		jobExecution = reloaded
	}
}

// Restart implements JobOperator. Only FAILED or STOPPED executions can be restarted.
func (o *DefaultJobOperator) Restart(ctx context.Context, executionID string) (*model.JobExecution, error) {
	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if jobExecution.Status != model.BatchStatusFailed && jobExecution.Status != model.BatchStatusStopped {
		return nil, fmt.Errorf("%w: JobExecution (ID: %s) is %s and cannot be restarted", ErrIllegalExecutionState, executionID, jobExecution.Status)
	}
	logger.Infof("Restarting Job '%s' from JobExecution (ID: %s).", jobExecution.JobName, executionID)
	return o.launcher.Start(ctx, jobExecution.JobName, jobExecution.Parameters)
}

// Abandon implements JobOperator. An execution that is STARTING, STARTED or running in this process
// cannot be abandoned.
func (o *DefaultJobOperator) Abandon(ctx context.Context, executionID string) error {
	jobExecution, err := o.jobRepository.FindJobExecutionByID(ctx, executionID)
	if err != nil {
		return err
	}
	switch {
	case jobExecution.Status == model.BatchStatusStarting, jobExecution.Status == model.BatchStatusStarted:
		return fmt.Errorf("%w: JobExecution (ID: %s) is %s; stop it first", ErrIllegalExecutionState, executionID, jobExecution.Status)
	case jobExecution.Status == model.BatchStatusCompleted, jobExecution.Status == model.BatchStatusAbandoned:
		return fmt.Errorf("%w: JobExecution (ID: %s) is already %s", ErrIllegalExecutionState, executionID, jobExecution.Status)
	case o.launcher.IsRunning(executionID):
		return fmt.Errorf("%w: JobExecution (ID: %s) is still running", ErrIllegalExecutionState, executionID)
	}

	jobExecution.MarkAsAbandoned()
	if err := o.jobRepository.UpdateJobExecution(ctx, jobExecution); err != nil {
		return err
	}
	logger.Infof("JobExecution (ID: %s) of Job '%s' abandoned.", executionID, jobExecution.JobName)
	return nil
}

// StartNextInstance implements JobOperator. The parameters of the newest instance of jobName are passed
// through the job's incrementer; a job that never ran starts from empty parameters.
func (o *DefaultJobOperator) StartNextInstance(ctx context.Context, jobName string) (*model.JobExecution, error) {
	job, err := o.registry.GetJob(jobName)
	if err != nil {
		return nil, err
	}
	inc, ok := job.(incrementable)
	if !ok || inc.Incrementer() == nil {
		return nil, fmt.Errorf("%w: '%s'", ErrNoIncrementer, jobName)
	}

	base := model.NewJobParameters()
	instances, err := o.jobRepository.FindJobInstancesByJobName(ctx, jobName, 0, 1)
	if err != nil {
		return nil, err
	}
	if len(instances) > 0 {
		base = instances[0].Parameters
	}
	next := inc.Incrementer().GetNext(base)
	logger.Infof("Starting next instance of Job '%s'. Parameters: %s", jobName, next.String())
	return o.launcher.Start(ctx, jobName, next)
}
