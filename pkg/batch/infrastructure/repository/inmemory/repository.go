// Package inmemory provides an in-memory implementation of the JobRepository interface.
// It stores all job-related data in maps within memory, suitable for testing and
// scenarios where persistence is not required.
package inmemory

import (
	"sync"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
)

// InMemoryJobRepository is an in-memory implementation of the JobRepository interface.
// Every operation holds one mutex, so CreateJobExecution's check-and-create is serialized.
// Stored records are copies; callers never share memory with the repository.
type InMemoryJobRepository struct {
	mu             sync.RWMutex
	seq            int64
	jobInstances   map[string]*model.JobInstance
	instanceByKey  map[model.InstanceKey]string
	jobExecutions  map[string]*model.JobExecution
	stepExecutions map[string]*model.StepExecution
	// order records insertion order; timestamps of fast runs can be equal.
	order map[string]int64
}

var _ repository.JobRepository = (*InMemoryJobRepository)(nil)

// NewInMemoryJobRepository creates and initializes a new instance of InMemoryJobRepository.
func NewInMemoryJobRepository() *InMemoryJobRepository {
	return &InMemoryJobRepository{
		jobInstances:   make(map[string]*model.JobInstance),
		instanceByKey:  make(map[model.InstanceKey]string),
		jobExecutions:  make(map[string]*model.JobExecution),
		stepExecutions: make(map[string]*model.StepExecution),
		order:          make(map[string]int64),
	}
}

// Close releases resources used by the repository.
// As an in-memory repository, it holds no external resources, so this method always returns nil.
func (r *InMemoryJobRepository) Close() error {
	return nil
}

func (r *InMemoryJobRepository) nextSeq(id string) {
	r.seq++
	r.order[id] = r.seq
}

func cloneInstance(ji *model.JobInstance) *model.JobInstance {
	c := *ji
	return &c
}

func cloneJobExecution(je *model.JobExecution) *model.JobExecution {
	c := *je
	c.StepExecutions = []*model.StepExecution{}
	c.Failures = append(model.FailureList{}, je.Failures...)
	c.ExecutionContext = je.ExecutionContext.Copy()
	return &c
}

func cloneStepExecution(se *model.StepExecution) *model.StepExecution {
	c := *se
	c.JobExecution = nil
	c.Failures = append(model.FailureList{}, se.Failures...)
	c.ExecutionContext = se.ExecutionContext.Copy()
	return &c
}
