package usecase

import (
	"fmt"
	"sort"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// JobRegistry holds the jobs that can be launched, by name.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[string]port.Job
}

// NewJobRegistry creates a registry holding jobs. It panics on duplicate names, which are a wiring bug.
func NewJobRegistry(jobs ...port.Job) *JobRegistry {
	r := &JobRegistry{jobs: make(map[string]port.Job, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds job. A second job with the same name is rejected.
func (r *JobRegistry) Register(job port.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.JobName()]; exists {
		return fmt.Errorf("job '%s' is already registered", job.JobName())
	}
	r.jobs[job.JobName()] = job
	return nil
}

// GetJob returns the named job or an error wrapping ErrNoSuchJob.
func (r *JobRegistry) GetJob(name string) (port.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrNoSuchJob, name)
	}
	return job, nil
}

// JobNames returns the registered job names, sorted.
func (r *JobRegistry) JobNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
