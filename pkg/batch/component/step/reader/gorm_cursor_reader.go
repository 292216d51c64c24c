package reader

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// QueryBuilder narrows the query of a GormCursorReader. It should apply a stable Order,
// otherwise a restarted step cannot skip the rows it already processed.
type QueryBuilder func(db *gorm.DB) *gorm.DB

// GormCursorReader streams the rows of a query over a single open cursor and scans each row into a T.
type GormCursorReader[T any] struct {
	position
	db    *gorm.DB
	build QueryBuilder

	gormDB *gorm.DB
	rows   *sql.Rows

	saveState bool
}

var _ port.ItemReader[any] = (*GormCursorReader[any])(nil)

// CursorOption configures a GormCursorReader.
type CursorOption func(*cursorOptions)

type cursorOptions struct {
	noSaveState bool
}

// WithoutSaveState stops the reader from recording its position. Use it when the writer changes
// the rows so that they no longer match the query: a restart then simply re-runs the query.
func WithoutSaveState() CursorOption {
	return func(o *cursorOptions) { o.noSaveState = true }
}

// NewGormCursorReader creates a cursor reader. The table is taken from T unless build selects one.
func NewGormCursorReader[T any](name string, db *gorm.DB, build QueryBuilder, opts ...CursorOption) *GormCursorReader[T] {
	var o cursorOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &GormCursorReader[T]{position: position{name: name}, db: db, build: build, saveState: !o.noSaveState}
}

// Open runs the query and moves the cursor past the rows read by a previous execution.
func (r *GormCursorReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.resume(ec)

	q := r.db.WithContext(ctx).Model(new(T))
	if r.build != nil {
		q = r.build(q)
	}
	rows, err := q.Rows()
	if err != nil {
		return exception.NewResourceError(r.name, "failed to open cursor", err)
	}
	for i := 0; i < r.count; i++ {
		if !rows.Next() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return exception.NewResourceError(r.name, "failed to position cursor", err)
	}
	r.rows = rows
	r.gormDB = q
	if r.count > 0 {
		logger.Infof("GormCursorReader '%s': resuming after %d rows.", r.name, r.count)
	}
	return nil
}

// Read scans the next row. The cursor has advanced before the scan, so a scan failure can only be
// skipped: reading again returns the following row.
func (r *GormCursorReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.rows == nil {
		return item, exception.NewResourceError(r.name, "cursor is not open", nil)
	}
	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return item, exception.NewResourceError(r.name, "cursor iteration failed", err)
		}
		return item, port.ErrNoMoreItems
	}
	r.count++
	if err := r.gormDB.ScanRows(r.rows, &item); err != nil {
		return item, exception.NewConsumedItemError(r.name, "failed to scan row", err)
	}
	return item, nil
}

func (r *GormCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	return err
}

func (r *GormCursorReader[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	r.resume(ec)
	return nil
}

func (r *GormCursorReader[T]) resume(ec model.ExecutionContext) {
	if !r.saveState {
		ec = nil
	}
	r.restore(ec)
}

func (r *GormCursorReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	if !r.saveState {
		return model.NewExecutionContext(), nil
	}
	return r.executionContext(), nil
}
