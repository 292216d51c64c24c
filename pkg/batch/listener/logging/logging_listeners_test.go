package logging_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/listener/logging"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	logger.SetOutput(zapcore.AddSync(buf))
	t.Cleanup(func() { logger.SetOutput(zapcore.Lock(os.Stderr)) })
	return buf
}

func TestListener_LogsLifecycleAndFaults(t *testing.T) {
	buf := capture(t)
	l := logging.NewListener()

	je := model.NewJobExecution("i", "csvToDbJob", model.NewJobParameters())
	se := model.NewStepExecution("s", je, "csvToDbStep")
	ctx := port.GetContextWithStepExecution(context.Background(), se)

	l.BeforeJob(ctx, je)
	l.BeforeStep(ctx, se)
	l.OnSkipProcess(ctx, "secret-row", errors.New("negative amount"))
	l.OnRetryWrite(ctx, []interface{}{1, 2}, errors.New("deadlock"))
	se.ReadCount, se.WriteCount, se.ProcessSkipCount = 3, 2, 1
	l.AfterStep(ctx, se)
	je.MarkAsFailed(errors.New("sink down"))
	l.AfterJob(ctx, je)

	out := buf.String()
	assert.Contains(t, out, "Job started")
	assert.Contains(t, out, "csvToDbJob")
	assert.Contains(t, out, "Skipped item <hidden> in step 'csvToDbStep': negative amount")
	assert.NotContains(t, out, "secret-row")
	assert.Contains(t, out, "Retrying write of 2 items")
	assert.Contains(t, out, "read=3 write=2 filter=0 skip=1")
	assert.Contains(t, out, "sink down")

	l.LogItems = true
	l.OnRetryProcess(ctx, "row-7", errors.New("transient"))
	assert.Contains(t, buf.String(), "Retrying item row-7")
}
