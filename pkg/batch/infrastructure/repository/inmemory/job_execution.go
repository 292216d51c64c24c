package inmemory

import (
	"context"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// CreateJobExecution finds or creates the instance for (jobName, params) and adds a STARTING execution.
// The whole operation runs under the repository's write lock.
func (r *InMemoryJobRepository) CreateJobExecution(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ji := r.findInstanceLocked(jobName, params)
	if ji == nil {
		ji = model.NewJobInstance(jobName, params)
		r.jobInstances[ji.ID] = ji
		r.instanceByKey[ji.Key()] = ji.ID
		r.nextSeq(ji.ID)
	} else {
		for _, je := range r.jobExecutions {
			if je.JobInstanceID != ji.ID {
				continue
			}
			if je.Status == model.BatchStatusCompleted {
				return nil, exception.NewDuplicateRunError(jobName, ji.ID)
			}
			if je.Status.IsRunning() {
				return nil, exception.NewConcurrentRunError(jobName, ji.ID, je.ID)
			}
		}
	}

	je := model.NewJobExecution(ji.ID, jobName, params)
	r.jobExecutions[je.ID] = cloneJobExecution(je)
	r.nextSeq(je.ID)
	return je, nil
}

// UpdateJobExecution updates an existing JobExecution and increments its version.
// It returns an optimistic locking failure if the stored version differs.
func (r *InMemoryJobRepository) UpdateJobExecution(ctx context.Context, jobExecution *model.JobExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.jobExecutions[jobExecution.ID]
	if !exists {
		return repository.ErrJobExecutionNotFound
	}
	if stored.Version != jobExecution.Version {
		return exception.NewOptimisticLockingFailureException("repository",
			"JobExecution "+jobExecution.ID+" was updated by another process", nil)
	}
	jobExecution.Version++
	r.jobExecutions[jobExecution.ID] = cloneJobExecution(jobExecution)
	return nil
}

// FindJobExecutionByID finds a JobExecution by its ID together with its StepExecutions.
func (r *InMemoryJobRepository) FindJobExecutionByID(ctx context.Context, id string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	je, ok := r.jobExecutions[id]
	if !ok {
		return nil, repository.ErrJobExecutionNotFound
	}
	return r.withStepsLocked(je), nil
}

// FindJobExecutionsByJobInstance returns the executions of an instance, newest first.
func (r *InMemoryJobRepository) FindJobExecutionsByJobInstance(ctx context.Context, jobInstanceID string) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executionsLocked(func(je *model.JobExecution) bool { return je.JobInstanceID == jobInstanceID }), nil
}

// FindLastJobExecution returns the newest execution of an instance.
func (r *InMemoryJobRepository) FindLastJobExecution(ctx context.Context, jobInstanceID string) (*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	executions := r.executionsLocked(func(je *model.JobExecution) bool { return je.JobInstanceID == jobInstanceID })
	if len(executions) == 0 {
		return nil, repository.ErrJobExecutionNotFound
	}
	return executions[0], nil
}

// FindRunningJobExecutions returns the executions of a job that are STARTING, STARTED or STOPPING.
func (r *InMemoryJobRepository) FindRunningJobExecutions(ctx context.Context, jobName string) ([]*model.JobExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.executionsLocked(func(je *model.JobExecution) bool {
		return je.JobName == jobName && je.Status.IsRunning()
	}), nil
}

func (r *InMemoryJobRepository) executionsLocked(match func(*model.JobExecution) bool) []*model.JobExecution {
	executions := []*model.JobExecution{}
	for _, je := range r.jobExecutions {
		if match(je) {
			executions = append(executions, r.withStepsLocked(je))
		}
	}
	sort.Slice(executions, func(i, j int) bool {
		return r.order[executions[i].ID] > r.order[executions[j].ID]
	})
	return executions
}

func (r *InMemoryJobRepository) withStepsLocked(je *model.JobExecution) *model.JobExecution {
	c := cloneJobExecution(je)
	for _, se := range r.stepsOfLocked(je.ID) {
		se.JobExecution = c
		c.StepExecutions = append(c.StepExecutions, se)
	}
	return c
}
