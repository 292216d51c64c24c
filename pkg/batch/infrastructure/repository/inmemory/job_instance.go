package inmemory

import (
	"context"
	"sort"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// FindJobInstanceByID finds a JobInstance by its ID.
// It returns an error if the JobInstance is not found.
func (r *InMemoryJobRepository) FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ji, ok := r.jobInstances[id]
	if !ok {
		return nil, repository.ErrJobInstanceNotFound
	}
	return cloneInstance(ji), nil
}

// FindJobInstanceByJobNameAndParameters finds a JobInstance by job name and exact parameters.
func (r *InMemoryJobRepository) FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ji := r.findInstanceLocked(jobName, params)
	if ji == nil {
		return nil, repository.ErrJobInstanceNotFound
	}
	return cloneInstance(ji), nil
}

func (r *InMemoryJobRepository) findInstanceLocked(jobName string, params model.JobParameters) *model.JobInstance {
	id, ok := r.instanceByKey[model.KeyOf(jobName, params)]
	if !ok {
		return nil
	}
	ji := r.jobInstances[id]
	if !ji.Parameters.Equal(params) {
		return nil
	}
	return ji
}

// FindJobInstancesByJobName returns instances of a job, newest first.
func (r *InMemoryJobRepository) FindJobInstancesByJobName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var instances []*model.JobInstance
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			instances = append(instances, cloneInstance(ji))
		}
	}
	sort.Slice(instances, func(i, j int) bool {
		return r.order[instances[i].ID] > r.order[instances[j].ID]
	})
	return page(instances, start, count), nil
}

// GetJobInstanceCount returns the number of instances of a job.
func (r *InMemoryJobRepository) GetJobInstanceCount(ctx context.Context, jobName string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, ji := range r.jobInstances {
		if ji.JobName == jobName {
			n++
		}
	}
	return n, nil
}

// GetJobNames returns all distinct job names, sorted.
func (r *InMemoryJobRepository) GetJobNames(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	names := []string{}
	for _, ji := range r.jobInstances {
		if _, ok := seen[ji.JobName]; !ok {
			seen[ji.JobName] = struct{}{}
			names = append(names, ji.JobName)
		}
	}
	sort.Strings(names)
	return names, nil
}

func page[T any](items []T, start, count int) []T {
	if start < 0 {
		start = 0
	}
	if start >= len(items) {
		return []T{}
	}
	end := len(items)
	if count > 0 && start+count < end {
		end = start + count
	}
	return items[start:end]
}
