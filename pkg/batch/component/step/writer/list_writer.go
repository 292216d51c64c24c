package writer

import (
	"context"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// ListWriter collects items in memory. A chunk becomes visible in Items only after its transaction commits.
type ListWriter[T any] struct {
	mu    sync.Mutex
	items []T
}

var _ port.ItemWriter[any] = (*ListWriter[any])(nil)

// NewListWriter creates an empty ListWriter.
func NewListWriter[T any]() *ListWriter[T] {
	return &ListWriter[T]{}
}

func (w *ListWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

func (w *ListWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	chunk := append([]T(nil), items...)
	t.AfterCommit(func() {
		w.mu.Lock()
		w.items = append(w.items, chunk...)
		w.mu.Unlock()
	})
	return nil
}

// Items returns a copy of the committed items.
func (w *ListWriter[T]) Items() []T {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]T(nil), w.items...)
}

func (w *ListWriter[T]) Close(ctx context.Context) error {
	return nil
}

func (w *ListWriter[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	return nil
}

func (w *ListWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return model.NewExecutionContext(), nil
}
