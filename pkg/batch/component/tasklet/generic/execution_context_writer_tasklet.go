package generic

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

// ExecutionContextWriterTasklet writes typed values into the step ExecutionContext.
// Keys have the form "<key>.<type>" with type string, int, float or bool, e.g. "limit.int": "10".
type ExecutionContextWriterTasklet struct {
	name       string
	properties map[string]string
}

var _ port.Tasklet = (*ExecutionContextWriterTasklet)(nil)

// NewExecutionContextWriterTasklet creates the tasklet.
func NewExecutionContextWriterTasklet(name string, properties map[string]string) *ExecutionContextWriterTasklet {
	return &ExecutionContextWriterTasklet{name: name, properties: properties}
}

func (t *ExecutionContextWriterTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	for spec, raw := range t.properties {
		idx := strings.LastIndex(spec, ".")
		if idx <= 0 {
			stepExecution.ExecutionContext.Put(spec, raw)
			continue
		}
		key, typ := spec[:idx], spec[idx+1:]
		var (
			value interface{}
			err   error
		)
		switch typ {
		case "string":
			value = raw
		case "int":
			value, err = strconv.Atoi(raw)
		case "float":
			value, err = strconv.ParseFloat(raw, 64)
		case "bool":
			value, err = strconv.ParseBool(raw)
		default:
			key, value = spec, raw
		}
		if err != nil {
			return model.ExitStatusFailed, exception.NewBatchError(t.name, fmt.Sprintf("invalid %s value for '%s'", typ, key), err, false, false)
		}
		stepExecution.ExecutionContext.Put(key, value)
	}
	return model.ExitStatusCompleted, nil
}

func (t *ExecutionContextWriterTasklet) Close(ctx context.Context) error {
	return nil
}
