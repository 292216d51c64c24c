package reader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Opener opens the byte stream a CSVReader parses.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// FileOpener opens a file on the local file system.
func FileOpener(path string) Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return os.Open(path)
	}
}

// FSOpener opens name in fsys, e.g. an embedded resource.
func FSOpener(fsys fs.FS, name string) Opener {
	return func(context.Context) (io.ReadCloser, error) {
		return fsys.Open(name)
	}
}

// StorageOpener downloads objectName through a storage connection.
func StorageOpener(resolver storage.StorageConnectionResolver, connectionName, bucket, objectName string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		conn, err := resolver.ResolveStorageConnection(ctx, connectionName)
		if err != nil {
			return nil, err
		}
		return conn.Download(ctx, bucket, objectName)
	}
}

// FieldMapper converts one CSV record into an item. line is 1-based and counts the header.
type FieldMapper[T any] func(record []string, line int) (T, error)

// CSVReader reads delimited text records and maps them to items.
type CSVReader[T any] struct {
	position
	open       Opener
	mapper     FieldMapper[T]
	skipHeader bool
	comma      rune

	rc   io.ReadCloser
	csv  *csv.Reader
	line int
}

var _ port.ItemReader[any] = (*CSVReader[any])(nil)

// CSVOption configures a CSVReader.
type CSVOption func(*csvOptions)

type csvOptions struct {
	skipHeader bool
	comma      rune
}

// WithHeader skips the first line of the input.
func WithHeader() CSVOption {
	return func(o *csvOptions) { o.skipHeader = true }
}

// WithComma sets the field delimiter. The default is ','.
func WithComma(r rune) CSVOption {
	return func(o *csvOptions) { o.comma = r }
}

// NewCSVReader creates a CSV reader.
func NewCSVReader[T any](name string, open Opener, mapper FieldMapper[T], opts ...CSVOption) *CSVReader[T] {
	o := csvOptions{comma: ','}
	for _, opt := range opts {
		opt(&o)
	}
	return &CSVReader[T]{
		position:   position{name: name},
		open:       open,
		mapper:     mapper,
		skipHeader: o.skipHeader,
		comma:      o.comma,
	}
}

// Open opens the input, skips the header and fast-forwards past records already read by a previous execution.
func (r *CSVReader[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	r.restore(ec)
	rc, err := r.open(ctx)
	if err != nil {
		return exception.NewResourceError(r.name, "failed to open CSV input", err)
	}
	r.rc = rc
	r.csv = csv.NewReader(rc)
	r.csv.Comma = r.comma
	r.csv.ReuseRecord = false
	r.csv.FieldsPerRecord = -1
	r.line = 0

	if r.skipHeader {
		if _, err := r.csv.Read(); err != nil && !errors.Is(err, io.EOF) {
			return exception.NewResourceError(r.name, "failed to read CSV header", err)
		}
		r.line++
	}
	for i := 0; i < r.count; i++ {
		if _, err := r.csv.Read(); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var perr *csv.ParseError
			if !errors.As(err, &perr) {
				return exception.NewResourceError(r.name, "failed to skip already read CSV records", err)
			}
		}
		r.line++
	}
	if r.count > 0 {
		logger.Infof("CSVReader '%s': resuming after %d records.", r.name, r.count)
	}
	return nil
}

// Read maps the next record. Malformed records and mapper failures are item errors, so the fault policy may skip them.
func (r *CSVReader[T]) Read(ctx context.Context) (T, error) {
	var zero T
	if r.csv == nil {
		return zero, exception.NewResourceError(r.name, "CSV reader is not open", nil)
	}
	record, err := r.csv.Read()
	if errors.Is(err, io.EOF) {
		return zero, port.ErrNoMoreItems
	}
	r.line++
	r.count++
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			return zero, exception.NewConsumedItemError(r.name, fmt.Sprintf("malformed record at line %d", r.line), err)
		}
		return zero, exception.NewResourceError(r.name, "failed to read CSV input", err)
	}
	item, err := r.mapper(record, r.line)
	if err != nil {
		return zero, exception.NewConsumedItemError(r.name, fmt.Sprintf("cannot map record at line %d", r.line), err)
	}
	return item, nil
}

func (r *CSVReader[T]) Close(ctx context.Context) error {
	if r.rc == nil {
		return nil
	}
	err := r.rc.Close()
	r.rc = nil
	r.csv = nil
	return err
}

func (r *CSVReader[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	r.restore(ec)
	return nil
}

func (r *CSVReader[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	return r.executionContext(), nil
}
