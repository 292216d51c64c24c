package generic_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/generic"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

func newStepExecution() *model.StepExecution {
	je := model.NewJobExecution("i", "genericJob", model.NewJobParameters())
	return model.NewStepExecution("s", je, "step")
}

func TestFuncTasklet_RunsInsideTransaction(t *testing.T) {
	tm := tx.NewResourcelessTransactionManager()
	current, err := tm.Begin(context.Background())
	require.NoError(t, err)

	committed := false
	task := generic.NewFuncTasklet("setup", func(ctx context.Context, c tx.Tx, se *model.StepExecution) error {
		c.AfterCommit(func() { committed = true })
		se.WriteCount = 15
		return nil
	})
	se := newStepExecution()
	status, err := task.Execute(tx.WithTx(context.Background(), current), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, status)
	require.NoError(t, tm.Commit(current))
	assert.True(t, committed)
	assert.Equal(t, 15, se.WriteCount)

	_, err = task.Execute(context.Background(), se)
	assert.ErrorContains(t, err, "requires a transaction")

	failing := generic.NewFuncTasklet("boom", func(context.Context, tx.Tx, *model.StepExecution) error {
		return errors.New("boom")
	})
	status, err = failing.Execute(tx.WithTx(context.Background(), current), se)
	assert.Equal(t, model.ExitStatusFailed, status)
	assert.EqualError(t, err, "boom")
}

func TestExecutionContextWriterTasklet(t *testing.T) {
	se := newStepExecution()
	task := generic.NewExecutionContextWriterTasklet("ec", map[string]string{
		"limit.int":    "10",
		"ratio.float":  "0.5",
		"enabled.bool": "true",
		"mode.string":  "FAST",
		"plain":        "value",
	})
	_, err := task.Execute(context.Background(), se)
	require.NoError(t, err)
	limit, _ := se.ExecutionContext.GetInt("limit")
	assert.Equal(t, 10, limit)
	enabled, _ := se.ExecutionContext.GetBool("enabled")
	assert.True(t, enabled)
	mode, _ := se.ExecutionContext.GetString("mode")
	assert.Equal(t, "FAST", mode)
	plain, _ := se.ExecutionContext.GetString("plain")
	assert.Equal(t, "value", plain)

	bad := generic.NewExecutionContextWriterTasklet("ec", map[string]string{"limit.int": "ten"})
	_, err = bad.Execute(context.Background(), se)
	assert.ErrorContains(t, err, "invalid int value")
}

func TestFailingTasklet_CountsAttemptsInExecutionContext(t *testing.T) {
	se := newStepExecution()
	task := generic.NewFailingTasklet("flaky", 2)
	for i := 0; i < 2; i++ {
		status, err := task.Execute(context.Background(), se)
		assert.Error(t, err)
		assert.Equal(t, model.ExitStatusFailed, status)
	}
	status, err := task.Execute(context.Background(), se)
	require.NoError(t, err)
	assert.Equal(t, model.ExitStatusCompleted, status)
	n, _ := se.ExecutionContext.GetInt(generic.AttemptsKey("flaky"))
	assert.Equal(t, 3, n)
	require.NoError(t, task.Close(context.Background()))
}
