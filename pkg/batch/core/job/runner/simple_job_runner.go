package runner

import (
	"context"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobRunner is an implementation of port.JobRunner that marks the execution STARTED, calls the
// Job's Run method and persists the final state.
type SimpleJobRunner struct {
	jobRepository repository.JobRepository
}

var _ port.JobRunner = (*SimpleJobRunner)(nil)

// NewSimpleJobRunner creates an instance of SimpleJobRunner.
func NewSimpleJobRunner(repo repository.JobRepository) *SimpleJobRunner {
	return &SimpleJobRunner{jobRepository: repo}
}

// Run executes job for jobExecution and returns the job's error.
// Repository writes use a context that is not cancelled by a stop request.
func (r *SimpleJobRunner) Run(ctx context.Context, job port.Job, jobExecution *model.JobExecution) error {
	persistCtx := context.WithoutCancel(ctx)

	jobExecution.MarkAsStarted()
	if err := r.update(persistCtx, jobExecution); err != nil {
		logger.Errorf("JobRunner: failed to update JobExecution (ID: %s) status to STARTED: %v", jobExecution.ID, err)
		jobExecution.MarkAsFailed(err)
		r.persistFinal(persistCtx, jobExecution)
		return err
	}

	err := job.Run(ctx, jobExecution, jobExecution.Parameters)

	if err != nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsFailed(err)
	} else if err == nil && !jobExecution.Status.IsFinished() {
		jobExecution.MarkAsCompleted()
	}
	if jobExecution.EndTime == nil {
		now := time.Now()
		jobExecution.EndTime = &now
	}
	r.persistFinal(persistCtx, jobExecution)
	return err
}

func (r *SimpleJobRunner) persistFinal(ctx context.Context, jobExecution *model.JobExecution) {
	if err := r.update(ctx, jobExecution); err != nil {
		// Metadata failures are not added to the execution's failures.
		logger.Errorf("JobRunner: failed to update final JobExecution (ID: %s) state: %v", jobExecution.ID, err)
	}
}

// update writes jobExecution. If an operator changed the stored record meanwhile (for example marked it
// STOPPING), the stored version is adopted and the write is retried once.
func (r *SimpleJobRunner) update(ctx context.Context, jobExecution *model.JobExecution) error {
	err := r.jobRepository.UpdateJobExecution(ctx, jobExecution)
	if !exception.IsOptimisticLockingFailure(err) {
		return err
	}
	stored, findErr := r.jobRepository.FindJobExecutionByID(ctx, jobExecution.ID)
	if findErr != nil {
		return err
	}
	if stored.Status == model.BatchStatusStopping && jobExecution.Status.IsRunning() {
		jobExecution.Status = model.BatchStatusStopping
	}
	logger.Debugf("JobRunner: JobExecution (ID: %s) changed concurrently (stored %s v%d), retrying.",
		jobExecution.ID, stored.Status, stored.Version)
	jobExecution.Version = stored.Version
	return r.jobRepository.UpdateJobExecution(ctx, jobExecution)
}
