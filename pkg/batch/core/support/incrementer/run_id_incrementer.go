package incrementer

import (
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// RunIDIncrementer adds or increments a LONG run id parameter.
// It sets the parameter to 1 if it does not exist, or increments its value if it does.
type RunIDIncrementer struct {
	name string
}

// NewRunIDIncrementer creates a new instance of RunIDIncrementer.
func NewRunIDIncrementer(name string) *RunIDIncrementer {
	if name == "" {
		name = DefaultRunIDKey
	}
	return &RunIDIncrementer{name: name}
}

// GetNext returns a copy of params with the run id incremented.
func (i *RunIDIncrementer) GetNext(params model.JobParameters) model.JobParameters {
	current, ok := params.GetLong(i.name)
	next := int64(1)
	if ok {
		next = current + 1
	}
	logger.Debugf("JobParametersIncrementer '%s': setting '%s' to %d.", i, i.name, next)
	return model.NewJobParametersBuilderFrom(params).AddLong(i.name, next).ToJobParameters()
}

// String returns the string representation of RunIDIncrementer.
func (i *RunIDIncrementer) String() string {
	return fmt.Sprintf("RunIDIncrementer[name=%s]", i.name)
}

var _ port.JobParametersIncrementer = (*RunIDIncrementer)(nil)
