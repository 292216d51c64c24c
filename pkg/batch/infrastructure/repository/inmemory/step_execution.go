package inmemory

import (
	"context"
	"fmt"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// SaveStepExecution persists a new StepExecution.
// It returns an error if a StepExecution with the same ID already exists.
func (r *InMemoryJobRepository) SaveStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.stepExecutions[stepExecution.ID]; exists {
		return fmt.Errorf("StepExecution with ID %s already exists", stepExecution.ID)
	}
	if _, exists := r.jobExecutions[stepExecution.JobExecutionID]; !exists {
		return repository.ErrJobExecutionNotFound
	}
	r.stepExecutions[stepExecution.ID] = cloneStepExecution(stepExecution)
	r.nextSeq(stepExecution.ID)
	return nil
}

// UpdateStepExecution updates an existing StepExecution and increments its version.
func (r *InMemoryJobRepository) UpdateStepExecution(ctx context.Context, stepExecution *model.StepExecution) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, exists := r.stepExecutions[stepExecution.ID]
	if !exists {
		return repository.ErrStepExecutionNotFound
	}
	if stored.Version != stepExecution.Version {
		return exception.NewOptimisticLockingFailureException("repository",
			"StepExecution "+stepExecution.ID+" was updated by another process", nil)
	}
	stepExecution.Version++
	r.stepExecutions[stepExecution.ID] = cloneStepExecution(stepExecution)
	return nil
}

// FindStepExecutionByID finds a StepExecution by its ID.
func (r *InMemoryJobRepository) FindStepExecutionByID(ctx context.Context, id string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	se, ok := r.stepExecutions[id]
	if !ok {
		return nil, repository.ErrStepExecutionNotFound
	}
	return cloneStepExecution(se), nil
}

// FindStepExecutionsByJobExecution returns the step executions of a job execution in start order.
func (r *InMemoryJobRepository) FindStepExecutionsByJobExecution(ctx context.Context, jobExecutionID string) ([]*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stepsOfLocked(jobExecutionID), nil
}

// FindLastStepExecution returns the newest execution of stepName across the executions of an instance.
func (r *InMemoryJobRepository) FindLastStepExecution(ctx context.Context, jobInstanceID, stepName string) (*model.StepExecution, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last *model.StepExecution
	for _, se := range r.stepExecutions {
		if se.StepName != stepName {
			continue
		}
		je, ok := r.jobExecutions[se.JobExecutionID]
		if !ok || je.JobInstanceID != jobInstanceID {
			continue
		}
		if last == nil || r.order[se.ID] > r.order[last.ID] {
			last = se
		}
	}
	if last == nil {
		return nil, repository.ErrStepExecutionNotFound
	}
	return cloneStepExecution(last), nil
}

func (r *InMemoryJobRepository) stepsOfLocked(jobExecutionID string) []*model.StepExecution {
	steps := []*model.StepExecution{}
	for _, se := range r.stepExecutions {
		if se.JobExecutionID == jobExecutionID {
			steps = append(steps, cloneStepExecution(se))
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		return r.order[steps[i].ID] < r.order[steps[j].ID]
	})
	return steps
}
