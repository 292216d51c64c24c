// Package metrics decorates the configured MetricRecorder so that recording never blocks chunk processing.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// event is one deferred call on the wrapped recorder.
type event struct {
	ctx    context.Context
	name   string
	record func(ctx context.Context, r metrics.MetricRecorder)
}

// AsyncMetricRecorder queues metric calls and applies them to the wrapped recorder in a worker goroutine.
// Events are dropped with a warning when the queue is full.
type AsyncMetricRecorder struct {
	queue    chan event
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	target   metrics.MetricRecorder
}

var _ metrics.MetricRecorder = (*AsyncMetricRecorder)(nil)

// NewAsyncMetricRecorder starts the worker. A bufferSize of 0 or less uses 100.
func NewAsyncMetricRecorder(bufferSize int, target metrics.MetricRecorder) *AsyncMetricRecorder {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	r := &AsyncMetricRecorder{
		queue:  make(chan event, bufferSize),
		stopCh: make(chan struct{}),
		target: target,
	}
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *AsyncMetricRecorder) run() {
	defer r.wg.Done()
	for {
		select {
		case ev := <-r.queue:
			ev.record(ev.ctx, r.target)
		case <-r.stopCh:
			for {
				select {
				case ev := <-r.queue:
					ev.record(ev.ctx, r.target)
				default:
					return
				}
			}
		}
	}
}

// Close stops the worker after draining the queue.
func (r *AsyncMetricRecorder) Close() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// send queues record. The context keeps its values (the running StepExecution) but not its cancellation.
func (r *AsyncMetricRecorder) send(ctx context.Context, name string, record func(context.Context, metrics.MetricRecorder)) {
	select {
	case r.queue <- event{ctx: context.WithoutCancel(ctx), name: name, record: record}:
	default:
		logger.Warnf("AsyncMetricRecorder: queue is full, dropping %s event.", name)
	}
}

func (r *AsyncMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	snapshot := *execution
	r.send(ctx, "job_start", func(c context.Context, t metrics.MetricRecorder) { t.RecordJobStart(c, &snapshot) })
}

func (r *AsyncMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	snapshot := *execution
	r.send(ctx, "job_end", func(c context.Context, t metrics.MetricRecorder) { t.RecordJobEnd(c, &snapshot) })
}

func (r *AsyncMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	snapshot := *execution
	r.send(ctx, "step_start", func(c context.Context, t metrics.MetricRecorder) { t.RecordStepStart(c, &snapshot) })
}

func (r *AsyncMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	snapshot := *execution
	r.send(ctx, "step_end", func(c context.Context, t metrics.MetricRecorder) { t.RecordStepEnd(c, &snapshot) })
}

func (r *AsyncMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.send(ctx, "item_read", func(c context.Context, t metrics.MetricRecorder) { t.RecordItemRead(c, stepName) })
}

func (r *AsyncMetricRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.send(ctx, "item_process", func(c context.Context, t metrics.MetricRecorder) { t.RecordItemProcess(c, stepName) })
}

func (r *AsyncMetricRecorder) RecordItemFilter(ctx context.Context, stepName string) {
	r.send(ctx, "item_filter", func(c context.Context, t metrics.MetricRecorder) { t.RecordItemFilter(c, stepName) })
}

func (r *AsyncMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.send(ctx, "item_write", func(c context.Context, t metrics.MetricRecorder) { t.RecordItemWrite(c, stepName, count) })
}

func (r *AsyncMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.send(ctx, "item_skip", func(c context.Context, t metrics.MetricRecorder) { t.RecordItemSkip(c, stepName, reason) })
}

func (r *AsyncMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.send(ctx, "item_retry", func(c context.Context, t metrics.MetricRecorder) { t.RecordItemRetry(c, stepName, reason) })
}

func (r *AsyncMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.send(ctx, "chunk_commit", func(c context.Context, t metrics.MetricRecorder) { t.RecordChunkCommit(c, stepName, count) })
}

func (r *AsyncMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.send(ctx, "chunk_rollback", func(c context.Context, t metrics.MetricRecorder) { t.RecordChunkRollback(c, stepName) })
}

func (r *AsyncMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.send(ctx, "duration", func(c context.Context, t metrics.MetricRecorder) { t.RecordDuration(c, name, duration, tags) })
}

// DecorateAsync wraps the provided MetricRecorder with an AsyncMetricRecorder that is drained on shutdown.
func DecorateAsync(lc fx.Lifecycle, cfg *config.Config, recorder metrics.MetricRecorder) metrics.MetricRecorder {
	async := NewAsyncMetricRecorder(cfg.Batch.MetricsAsyncBufferSize, recorder)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			async.Close()
			return nil
		},
	})
	logger.Debugf("MetricRecorder decorated with asynchronous wrapper.")
	return async
}
