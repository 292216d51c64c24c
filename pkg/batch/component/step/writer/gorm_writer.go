// Package writer provides the item sinks of chunk steps.
// All writers take part in the chunk transaction: database writers go through the
// transaction itself, the others defer their side effects to tx.AfterCommit.
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

// GormWriter inserts items through the chunk transaction, optionally as an upsert.
type GormWriter[T any] struct {
	name            string
	tableName       string
	batchSize       int
	conflictColumns []string
	updateColumns   []string
}

var _ port.ItemWriter[any] = (*GormWriter[any])(nil)

// GormWriterOption configures a GormWriter.
type GormWriterOption func(*gormWriterOptions)

type gormWriterOptions struct {
	tableName       string
	batchSize       int
	conflictColumns []string
	updateColumns   []string
}

// WithTable overrides the table derived from the item type.
func WithTable(name string) GormWriterOption {
	return func(o *gormWriterOptions) { o.tableName = name }
}

// WithBatchSize splits a chunk into INSERT statements of at most n rows.
func WithBatchSize(n int) GormWriterOption {
	return func(o *gormWriterOptions) { o.batchSize = n }
}

// WithUpsert turns inserts into upserts on conflictColumns. With no updateColumns conflicting rows are left unchanged.
func WithUpsert(conflictColumns []string, updateColumns ...string) GormWriterOption {
	return func(o *gormWriterOptions) {
		o.conflictColumns = conflictColumns
		o.updateColumns = updateColumns
	}
}

// NewGormWriter creates a GormWriter.
func NewGormWriter[T any](name string, opts ...GormWriterOption) *GormWriter[T] {
	var o gormWriterOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &GormWriter[T]{
		name:            name,
		tableName:       o.tableName,
		batchSize:       o.batchSize,
		conflictColumns: o.conflictColumns,
		updateColumns:   o.updateColumns,
	}
}

func (w *GormWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

func (w *GormWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	size := w.batchSize
	if size <= 0 {
		size = len(items)
	}
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batch := items[start:end]

		var err error
		if len(w.conflictColumns) > 0 {
			_, err = t.ExecuteUpsert(ctx, batch, w.tableName, w.conflictColumns, w.updateColumns)
		} else {
			_, err = t.ExecuteUpdate(ctx, batch, tx.OperationCreate, w.tableName, nil)
		}
		if err != nil {
			return exception.NewBatchError(w.name, fmt.Sprintf("failed to write items %d..%d", start, end-1), err, false, false)
		}
	}
	logger.Debugf("GormWriter '%s': wrote %d items.", w.name, len(items))
	return nil
}

func (w *GormWriter[T]) Close(ctx context.Context) error {
	return nil
}

func (w *GormWriter[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

func (w *GormWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}
