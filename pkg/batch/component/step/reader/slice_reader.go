package reader

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// SliceReader reads items from an in-memory slice.
type SliceReader[T any] struct {
	position
	items []T
}

var _ port.ItemReader[any] = (*SliceReader[any])(nil)

// NewSliceReader creates a reader over items. The slice is not copied.
func NewSliceReader[T any](name string, items []T) *SliceReader[T] {
	return &SliceReader[T]{position: position{name: name}, items: items}
}

func (r *SliceReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.restore(ec)
	return nil
}

func (r *SliceReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.count >= len(r.items) {
		return zero, port.ErrNoMoreItems
	}
	item := r.items[r.count]
	r.count++
	return item, nil
}

func (r *SliceReader[T]) Close(ctx context.Context) error {
	return nil
}

func (r *SliceReader[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	r.restore(ec)
	return nil
}

func (r *SliceReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return r.executionContext(), nil
}
