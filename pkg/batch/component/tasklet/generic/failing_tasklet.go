package generic

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// FailingTasklet fails its first failCount executions and completes afterwards.
// The attempt count is kept in the step ExecutionContext, so it survives a restart.
type FailingTasklet struct {
	name      string
	failCount int
}

var _ port.Tasklet = (*FailingTasklet)(nil)

// NewFailingTasklet creates a FailingTasklet.
func NewFailingTasklet(name string, failCount int) *FailingTasklet {
	return &FailingTasklet{name: name, failCount: failCount}
}

// AttemptsKey returns the ExecutionContext key counting the attempts of the named tasklet.
func AttemptsKey(name string) string {
	return name + ".attempts"
}

func (t *FailingTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	attempts, _ := stepExecution.ExecutionContext.GetInt(AttemptsKey(t.name))
	attempts++
	stepExecution.ExecutionContext.Put(AttemptsKey(t.name), attempts)
	if attempts <= t.failCount {
		logger.Warnf("FailingTasklet '%s': failing attempt %d of %d.", t.name, attempts, t.failCount)
		return model.ExitStatusFailed, exception.NewBatchErrorf(t.name, "intentional failure on attempt %d", attempts)
	}
	return model.ExitStatusCompleted, nil
}

func (t *FailingTasklet) Close(ctx context.Context) error {
	return nil
}
