// Package tracing provides listeners that add chunk and fault events to the step span in the context.
// Job and step spans themselves are started by the job and the steps.
package tracing

import (
	"context"
	"fmt"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
)

// Listener records chunk outcomes, skips and retries as span events.
type Listener struct {
	tracer metrics.Tracer
}

var (
	_ port.ChunkListener     = (*Listener)(nil)
	_ port.SkipListener      = (*Listener)(nil)
	_ port.RetryItemListener = (*Listener)(nil)
)

// NewListener creates a tracing listener on tracer.
func NewListener(tracer metrics.Tracer) *Listener {
	return &Listener{tracer: tracer}
}

func (l *Listener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {}

func (l *Listener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	l.tracer.RecordEvent(ctx, "chunk.committed", map[string]interface{}{
		"commit_count": stepExecution.CommitCount,
		"read_count":   stepExecution.ReadCount,
		"write_count":  stepExecution.WriteCount,
	})
}

func (l *Listener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	l.tracer.RecordEvent(ctx, "chunk.rolled_back", map[string]interface{}{
		"rollback_count": stepExecution.RollbackCount,
		"error":          err.Error(),
	})
}

func (l *Listener) OnSkipRead(ctx context.Context, err error) {
	l.tracer.RecordEvent(ctx, "item.skipped", map[string]interface{}{"phase": "read", "error": err.Error()})
}

func (l *Listener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	l.tracer.RecordEvent(ctx, "item.skipped", map[string]interface{}{
		"phase": "process",
		"item":  fmt.Sprintf("%T", item),
		"error": err.Error(),
	})
}

func (l *Listener) OnRetryRead(ctx context.Context, err error) {
	l.tracer.RecordEvent(ctx, "item.retried", map[string]interface{}{"phase": "read", "error": err.Error()})
}

func (l *Listener) OnRetryProcess(ctx context.Context, item interface{}, err error) {
	l.tracer.RecordEvent(ctx, "item.retried", map[string]interface{}{"phase": "process", "error": err.Error()})
}

func (l *Listener) OnRetryWrite(ctx context.Context, items []interface{}, err error) {
	l.tracer.RecordEvent(ctx, "chunk.write_retried", map[string]interface{}{"items": len(items), "error": err.Error()})
}
