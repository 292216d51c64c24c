package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func finishedExecutions() (*model.JobExecution, *model.StepExecution) {
	je := model.NewJobExecution("instance-1", "orderProcessJob", model.NewJobParameters())
	je.MarkAsStarted()
	se := model.NewStepExecution(model.NewID(), je, "orderProcessStep")
	se.MarkAsStarted()
	se.ReadCount, se.WriteCount, se.CommitCount = 10, 10, 2
	se.MarkAsCompleted()
	je.AddStepExecution(se)
	je.MarkAsCompleted()
	return je, se
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	je, se := finishedExecutions()
	ctx := port.GetContextWithStepExecution(context.Background(), se)

	r.RecordJobStart(ctx, je)
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobsRunning.WithLabelValues("orderProcessJob")))
	for i := 0; i < 3; i++ {
		r.RecordItemRead(ctx, se.StepName)
	}
	r.RecordItemFilter(ctx, se.StepName)
	r.RecordItemWrite(ctx, se.StepName, 2)
	r.RecordItemSkip(ctx, se.StepName, "process")
	r.RecordChunkCommit(ctx, se.StepName, 2)
	r.RecordChunkRollback(ctx, se.StepName)
	r.RecordDuration(ctx, "chunk_duration", 20*time.Millisecond, map[string]string{"step": se.StepName})
	r.RecordStepEnd(ctx, se)
	r.RecordJobEnd(ctx, je)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.jobsRunning.WithLabelValues("orderProcessJob")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.itemReadCounter.WithLabelValues("orderProcessJob", "orderProcessStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemFilterCounter.WithLabelValues("orderProcessJob", "orderProcessStep")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.itemWriteCounter.WithLabelValues("orderProcessJob", "orderProcessStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemSkipCounter.WithLabelValues("orderProcessJob", "orderProcessStep", "process")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.chunkCommitCounter.WithLabelValues("orderProcessJob", "orderProcessStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.chunkRollbackCounter.WithLabelValues("orderProcessJob", "orderProcessStep")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobStatusCounter.WithLabelValues("orderProcessJob", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stepStatusCounter.WithLabelValues("orderProcessJob", "orderProcessStep", "COMPLETED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.operationSeconds))

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `batch_item_read_total{job_name="orderProcessJob",step_name="orderProcessStep"} 3`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestOpenTelemetryTracer_SpansAndEvents(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := NewOpenTelemetryTracer(provider)

	je := model.NewJobExecution("instance-1", "faultTolerantJob", model.NewJobParameters())
	je.MarkAsStarted()
	se := model.NewStepExecution(model.NewID(), je, "faultTolerantStep")
	se.MarkAsStarted()

	ctx, endJob := tracer.StartJobSpan(context.Background(), je)
	stepCtx, endStep := tracer.StartStepSpan(ctx, se)
	tracer.RecordEvent(stepCtx, "chunk.commit", map[string]interface{}{"items": 3, "step": "faultTolerantStep"})
	tracer.RecordError(stepCtx, "faultTolerantStep", errors.New("sink down"))
	se.MarkAsFailed(errors.New("sink down"))
	endStep()
	je.MarkAsFailed(errors.New("sink down"))
	endJob()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	step, job := spans[0], spans[1]
	assert.Equal(t, "step faultTolerantStep", step.Name())
	assert.Equal(t, "job faultTolerantJob", job.Name())
	assert.Equal(t, job.SpanContext().SpanID(), step.Parent().SpanID())
	assert.Equal(t, codes.Error, step.Status().Code)
	assert.Equal(t, codes.Error, job.Status().Code)

	var names []string
	for _, ev := range step.Events() {
		names = append(names, ev.Name)
	}
	assert.Contains(t, names, "chunk.commit")
	assert.Contains(t, names, "exception")
}

func TestOpenTelemetryRecorder_ManualReader(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	cfg := config.NewConfig().Observability
	provider, err := NewMeterProvider(context.Background(), cfg, reader)
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	r, err := NewOpenTelemetryRecorder(provider)
	require.NoError(t, err)
	je, se := finishedExecutions()
	ctx := port.GetContextWithStepExecution(context.Background(), se)
	r.RecordJobStart(ctx, je)
	r.RecordItemRead(ctx, se.StepName)
	r.RecordItemWrite(ctx, se.StepName, 4)
	r.RecordChunkCommit(ctx, se.StepName, 4)
	r.RecordStepEnd(ctx, se)
	r.RecordJobEnd(ctx, je)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		byName[m.Name] = m
	}
	items, ok := byName["batch.items"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range items.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(5), total)
	assert.Contains(t, byName, "batch.job.duration")
	assert.Contains(t, byName, "batch.chunks")
	assert.Contains(t, byName, "batch.step.executions")
}

func TestProviders_RejectUnknownProtocol(t *testing.T) {
	cfg := config.NewConfig().Observability
	cfg.Tracing.Exporter.Protocol = "carrier-pigeon"
	_, err := NewTracerProvider(context.Background(), cfg)
	assert.ErrorContains(t, err, "carrier-pigeon")

	cfg.Metrics.Exporter.Protocol = "smoke"
	_, err = NewMeterProvider(context.Background(), cfg)
	assert.ErrorContains(t, err, "smoke")
}
