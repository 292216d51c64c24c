package writer

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// UpdateMapper returns the row selector and the changed columns for one item.
type UpdateMapper[T any] func(item T) (where map[string]interface{}, columns map[string]interface{})

// GormUpdateWriter issues one UPDATE per item through the chunk transaction.
type GormUpdateWriter[T any] struct {
	name          string
	tableName     string
	mapper        UpdateMapper[T]
	requireUpdate bool
}

var _ port.ItemWriter[any] = (*GormUpdateWriter[any])(nil)

// NewGormUpdateWriter creates a writer updating tableName. With requireUpdate an item that matches no row fails the chunk.
func NewGormUpdateWriter[T any](name, tableName string, mapper UpdateMapper[T], requireUpdate bool) *GormUpdateWriter[T] {
	return &GormUpdateWriter[T]{name: name, tableName: tableName, mapper: mapper, requireUpdate: requireUpdate}
}

func (w *GormUpdateWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

func (w *GormUpdateWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	var updated int64
	for i, item := range items {
		where, columns := w.mapper(item)
		if len(where) == 0 {
			return exception.NewBatchError(w.name, fmt.Sprintf("item %d has no row selector", i), nil, false, false)
		}
		n, err := t.ExecuteUpdate(ctx, columns, tx.OperationUpdate, w.tableName, where)
		if err != nil {
			return exception.NewBatchError(w.name, fmt.Sprintf("failed to update item %d", i), err, false, false)
		}
		if n == 0 && w.requireUpdate {
			return exception.NewBatchError(w.name, fmt.Sprintf("item %d matched no row in '%s' (%v)", i, w.tableName, where), nil, false, false)
		}
		updated += n
	}
	logger.Debugf("GormUpdateWriter '%s': %d items updated %d rows.", w.name, len(items), updated)
	return nil
}

func (w *GormUpdateWriter[T]) Close(ctx context.Context) error {
	return nil
}

func (w *GormUpdateWriter[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

func (w *GormUpdateWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}
