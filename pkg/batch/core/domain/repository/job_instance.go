package repository

import (
	"context"
	"errors"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// ErrJobInstanceNotFound is returned when a JobInstance is not found.
var ErrJobInstanceNotFound = errors.New("job instance not found")

func init() {
	exception.RegisterErrorType("ErrJobInstanceNotFound", ErrJobInstanceNotFound)
}

// JobInstance defines lookups of job instance metadata. Instances are created only through
// JobExecution.CreateJobExecution.
type JobInstance interface {
	// FindJobInstanceByID finds a JobInstance by its ID.
	FindJobInstanceByID(ctx context.Context, id string) (*model.JobInstance, error)

	// FindJobInstanceByJobNameAndParameters finds the instance identified by a job name and exact parameters.
	FindJobInstanceByJobNameAndParameters(ctx context.Context, jobName string, params model.JobParameters) (*model.JobInstance, error)

	// FindJobInstancesByJobName returns instances of a job, newest first, paged by start and count.
	FindJobInstancesByJobName(ctx context.Context, jobName string, start, count int) ([]*model.JobInstance, error)

	// GetJobInstanceCount returns the number of instances of a job.
	GetJobInstanceCount(ctx context.Context, jobName string) (int, error)

	// GetJobNames returns all distinct job names, sorted.
	GetJobNames(ctx context.Context) ([]string, error)
}
