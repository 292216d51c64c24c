// Package generic provides general-purpose tasklets.
package generic

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// TxFunc is the body of a FuncTasklet. t is the step transaction.
type TxFunc func(ctx context.Context, t tx.Tx, stepExecution *model.StepExecution) error

// FuncTasklet runs a function inside the step transaction.
type FuncTasklet struct {
	name string
	fn   TxFunc
}

var _ port.Tasklet = (*FuncTasklet)(nil)

// NewFuncTasklet creates a FuncTasklet.
func NewFuncTasklet(name string, fn TxFunc) *FuncTasklet {
	return &FuncTasklet{name: name, fn: fn}
}

func (t *FuncTasklet) Execute(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	current, ok := tx.FromContext(ctx)
	if !ok {
		return model.ExitStatusFailed, fmt.Errorf("tasklet '%s' requires a transaction in its context", t.name)
	}
	if err := t.fn(ctx, current, stepExecution); err != nil {
		return model.ExitStatusFailed, err
	}
	return model.ExitStatusCompleted, nil
}

func (t *FuncTasklet) Close(ctx context.Context) error {
	return nil
}
