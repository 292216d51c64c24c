package tracing_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	inframetrics "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/tracing"
)

func TestListener_AddsEventsToStepSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tracer := inframetrics.NewOpenTelemetryTracer(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))
	l := tracing.NewListener(tracer)

	je := model.NewJobExecution("i", "faultTolerantJob", model.NewJobParameters())
	se := model.NewStepExecution("s", je, "faultTolerantStep")
	ctx, end := tracer.StartStepSpan(context.Background(), se)

	l.OnRetryProcess(ctx, "RETRY customer", errors.New("transient"))
	l.OnSkipProcess(ctx, "에러 customer", errors.New("invalid name"))
	se.CommitCount = 1
	l.AfterChunk(ctx, se)
	l.AfterChunkError(ctx, se, errors.New("sink down"))
	end()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	var names []string
	for _, ev := range spans[0].Events() {
		names = append(names, ev.Name)
	}
	assert.Equal(t, []string{"item.retried", "item.skipped", "chunk.committed", "chunk.rolled_back"}, names)
}
