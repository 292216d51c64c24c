package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/storage"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ParquetWriterConfig configures a ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef names the storage connection receiving the files.
	StorageRef string `yaml:"storage_ref"`
	// Bucket overrides the default bucket of the connection.
	Bucket string `yaml:"bucket"`
	// OutputBaseDir is the object prefix, e.g. "orders/processed".
	OutputBaseDir string `yaml:"output_base_dir"`
	// CompressionType is SNAPPY (default), GZIP or NONE.
	CompressionType string `yaml:"compression_type"`
}

// PartitionFunc returns the partition directory of an item, e.g. "dt=2024-01-31".
type PartitionFunc[T any] func(item T) (string, error)

// ParquetWriter encodes each chunk into one parquet file per partition and uploads the files once the
// chunk transaction has committed. T must be a struct carrying parquet tags.
type ParquetWriter[T any] struct {
	name        string
	cfg         ParquetWriterConfig
	codec       parquet.CompressionCodec
	resolver    storage.StorageConnectionResolver
	partitionOf PartitionFunc[T]

	conn storage.StorageConnection

	mu         sync.Mutex
	files      int
	uploadErrs *multierror.Error
}

var _ port.ItemWriter[any] = (*ParquetWriter[any])(nil)

// NewParquetWriter validates cfg and creates the writer. A nil partitionOf writes every item to OutputBaseDir.
func NewParquetWriter[T any](name string, cfg ParquetWriterConfig, resolver storage.StorageConnectionResolver, partitionOf PartitionFunc[T]) (*ParquetWriter[T], error) {
	if cfg.StorageRef == "" {
		return nil, fmt.Errorf("parquet writer '%s' requires storage_ref", name)
	}
	if cfg.OutputBaseDir == "" {
		return nil, fmt.Errorf("parquet writer '%s' requires output_base_dir", name)
	}
	codec, err := compressionCodec(cfg.CompressionType)
	if err != nil {
		return nil, fmt.Errorf("parquet writer '%s': %w", name, err)
	}
	if partitionOf == nil {
		partitionOf = func(T) (string, error) { return "", nil }
	}
	return &ParquetWriter[T]{
		name:        name,
		cfg:         cfg,
		codec:       codec,
		resolver:    resolver,
		partitionOf: partitionOf,
	}, nil
}

// FilesKey returns the ExecutionContext key counting the files a writer has uploaded.
func FilesKey(name string) string {
	return name + ".files.count"
}

func (w *ParquetWriter[T]) Open(ctx context.Context, ec model.ExecutionContext) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.cfg.StorageRef)
	if err != nil {
		return exception.NewResourceError(w.name, fmt.Sprintf("failed to resolve storage connection '%s'", w.cfg.StorageRef), err)
	}
	w.conn = conn
	w.restore(ec)
	w.uploadErrs = nil
	return nil
}

// Write encodes the chunk now, so an encoding failure rolls the chunk back, and uploads it after commit.
func (w *ParquetWriter[T]) Write(ctx context.Context, t tx.Tx, items []T) error {
	if len(items) == 0 {
		return nil
	}
	partitions := make(map[string][]T)
	for _, item := range items {
		key, err := w.partitionOf(item)
		if err != nil {
			return exception.NewBatchError(w.name, "failed to compute partition", err, false, false)
		}
		partitions[key] = append(partitions[key], item)
	}

	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	type encoded struct {
		object string
		data   []byte
	}
	files := make([]encoded, 0, len(keys))
	for _, key := range keys {
		data, err := w.encode(partitions[key])
		if err != nil {
			return exception.NewBatchError(w.name, fmt.Sprintf("failed to encode partition '%s'", key), err, false, false)
		}
		files = append(files, encoded{object: w.objectName(key), data: data})
	}

	t.AfterCommit(func() {
		for _, f := range files {
			err := w.conn.Upload(ctx, w.cfg.Bucket, f.object, bytes.NewReader(f.data), "application/vnd.apache.parquet")
			w.mu.Lock()
			if err != nil {
				w.uploadErrs = multierror.Append(w.uploadErrs, fmt.Errorf("upload %s: %w", f.object, err))
				logger.Errorf("ParquetWriter '%s': upload of '%s' failed: %v", w.name, f.object, err)
			} else {
				w.files++
				logger.Infof("ParquetWriter '%s': uploaded %s (%d bytes).", w.name, f.object, len(f.data))
			}
			w.mu.Unlock()
		}
	})
	return nil
}

func (w *ParquetWriter[T]) encode(items []T) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			data, err = nil, fmt.Errorf("parquet writer panicked: %v", r)
		}
	}()
	buf := new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, new(T), 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = w.codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *ParquetWriter[T]) objectName(partition string) string {
	file := fmt.Sprintf("data_%s_%s.parquet", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8])
	return path.Join(w.cfg.OutputBaseDir, partition, file)
}

// Close reports the uploads that failed after their chunk had committed.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.uploadErrs.ErrorOrNil()
}

func (w *ParquetWriter[T]) restore(ec model.ExecutionContext) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = 0
	if n, ok := ec.GetInt(FilesKey(w.name)); ok {
		w.files = n
	}
}

func (w *ParquetWriter[T]) SetExecutionContext(ctx context.Context, ec model.ExecutionContext) error {
	w.restore(ec)
	return nil
}

func (w *ParquetWriter[T]) GetExecutionContext(ctx context.Context) (model.ExecutionContext, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	ec := model.NewExecutionContext()
	ec.Put(FilesKey(w.name), w.files)
	return ec, nil
}

func compressionCodec(name string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(name) {
	case "SNAPPY", "":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", name)
	}
}
