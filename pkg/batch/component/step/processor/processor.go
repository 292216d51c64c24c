// Package processor provides item processors for chunk steps.
package processor

import (
	"context"
	"errors"
	"reflect"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// FuncProcessor adapts a function to port.ItemProcessor.
type FuncProcessor[I, O any] func(ctx context.Context, item I) (O, error)

var _ port.ItemProcessor[any, any] = FuncProcessor[any, any](nil)

// Process calls f.
func (f FuncProcessor[I, O]) Process(ctx context.Context, item I) (O, error) {
	return f(ctx, item)
}

// PassThroughProcessor returns every item unchanged.
type PassThroughProcessor[T any] struct{}

// NewPassThroughProcessor creates a PassThroughProcessor.
func NewPassThroughProcessor[T any]() PassThroughProcessor[T] {
	return PassThroughProcessor[T]{}
}

func (PassThroughProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	return item, nil
}

// CompositeProcessor runs delegates in order, feeding each output into the next delegate.
// The chain ends as soon as a delegate filters the item.
type CompositeProcessor[T any] struct {
	delegates []port.ItemProcessor[T, T]
}

// NewCompositeProcessor creates a CompositeProcessor.
func NewCompositeProcessor[T any](delegates ...port.ItemProcessor[T, T]) *CompositeProcessor[T] {
	return &CompositeProcessor[T]{delegates: delegates}
}

func (c *CompositeProcessor[T]) Process(ctx context.Context, item T) (T, error) {
	current := item
	for _, d := range c.delegates {
		out, err := d.Process(ctx, current)
		if err != nil {
			return out, err
		}
		if isNil(out) {
			return out, nil
		}
		current = out
	}
	return current, nil
}

// Compose chains two processors of different types.
func Compose[I, M, O any](first port.ItemProcessor[I, M], second port.ItemProcessor[M, O]) port.ItemProcessor[I, O] {
	return FuncProcessor[I, O](func(ctx context.Context, item I) (O, error) {
		var zero O
		mid, err := first.Process(ctx, item)
		if err != nil {
			return zero, err
		}
		if isNil(mid) {
			return zero, port.ErrItemFiltered
		}
		return second.Process(ctx, mid)
	})
}

// Filter drops items for which keep returns false.
func Filter[T any](keep func(T) bool) port.ItemProcessor[T, T] {
	return FuncProcessor[T, T](func(ctx context.Context, item T) (T, error) {
		if !keep(item) {
			var zero T
			return zero, port.ErrItemFiltered
		}
		return item, nil
	})
}

// IsFiltered reports whether a processor result means the item was dropped.
func IsFiltered[O any](out O, err error) bool {
	return errors.Is(err, port.ErrItemFiltered) || (err == nil && isNil(out))
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
