package tasklet_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/tasklet"
	batchtest "github.com/tigerroll/chunkbatch/pkg/batch/test"
)

type MockTasklet struct {
	mock.Mock
}

func (m *MockTasklet) Execute(ctx context.Context, se *model.StepExecution) (model.ExitStatus, error) {
	args := m.Called(ctx, se)
	return args.Get(0).(model.ExitStatus), args.Error(1)
}

func (m *MockTasklet) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func newExecution() (*model.JobExecution, *model.StepExecution) {
	return batchtest.NewTestExecution("setupOrdersJob", "setupOrdersStep", model.NewJobParameters())
}

func TestTaskletStep_CommitsOnSuccess(t *testing.T) {
	tk := new(MockTasklet)
	repo := new(batchtest.MockStepRepository)
	committed := false

	tk.On("Execute", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		current, ok := tx.FromContext(ctx)
		require.True(t, ok, "the tasklet runs inside a transaction")
		current.AfterCommit(func() { committed = true })
	}).Return(model.ExitStatusCompleted, nil)
	tk.On("Close", mock.Anything).Return(nil)
	repo.On("UpdateStepExecution", mock.Anything, mock.Anything).Return(nil)

	step := tasklet.NewTaskletStep("setupOrdersStep", tk, tx.NewResourcelessTransactionManager(), repo)
	je, se := newExecution()

	require.NoError(t, step.Execute(context.Background(), je, se))
	assert.True(t, committed)
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, 1, se.CommitCount)
	repo.AssertNumberOfCalls(t, "UpdateStepExecution", 2)
	tk.AssertExpectations(t)
}

func TestTaskletStep_RollsBackOnFailure(t *testing.T) {
	tk := new(MockTasklet)
	repo := new(batchtest.MockStepRepository)
	committed := false

	tk.On("Execute", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		current, _ := tx.FromContext(args.Get(0).(context.Context))
		current.AfterCommit(func() { committed = true })
	}).Return(model.ExitStatusFailed, errors.New("insert failed"))
	tk.On("Close", mock.Anything).Return(nil)
	repo.On("UpdateStepExecution", mock.Anything, mock.Anything).Return(nil)

	step := tasklet.NewTaskletStep("setupOrdersStep", tk, tx.NewResourcelessTransactionManager(), repo)
	je, se := newExecution()

	err := step.Execute(context.Background(), je, se)
	require.Error(t, err)
	assert.False(t, committed)
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Contains(t, se.Failures, "insert failed")
}

func TestTaskletStep_CustomExitStatus(t *testing.T) {
	tk := new(MockTasklet)
	repo := new(batchtest.MockStepRepository)
	tk.On("Execute", mock.Anything, mock.Anything).Return(model.ExitStatusNoOp, nil)
	tk.On("Close", mock.Anything).Return(nil)
	repo.On("UpdateStepExecution", mock.Anything, mock.Anything).Return(nil)

	step := tasklet.NewTaskletStep("noop", tk, tx.NewResourcelessTransactionManager(), repo)
	je, se := newExecution()

	require.NoError(t, step.Execute(context.Background(), je, se))
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Equal(t, model.ExitStatusNoOp, se.ExitStatus)
}

func TestTaskletStep_CloseErrorFailsStep(t *testing.T) {
	tk := new(MockTasklet)
	repo := new(batchtest.MockStepRepository)
	tk.On("Execute", mock.Anything, mock.Anything).Return(model.ExitStatusCompleted, nil)
	tk.On("Close", mock.Anything).Return(errors.New("close failed"))
	repo.On("UpdateStepExecution", mock.Anything, mock.Anything).Return(nil)

	step := tasklet.NewTaskletStep("closer", tk, tx.NewResourcelessTransactionManager(), repo)
	je, se := newExecution()

	assert.Error(t, step.Execute(context.Background(), je, se))
	assert.Equal(t, model.BatchStatusFailed, se.Status)
}

func TestTaskletStep_BeginFailureSkipsTasklet(t *testing.T) {
	tk := new(MockTasklet)
	repo := new(batchtest.MockStepRepository)
	tm := new(batchtest.MockTxManager)
	tk.On("Close", mock.Anything).Return(nil)
	repo.On("UpdateStepExecution", mock.Anything, mock.Anything).Return(nil)
	tm.On("Begin", mock.Anything).Return(nil, errors.New("database is locked"))

	step := tasklet.NewTaskletStep("setupOrdersStep", tk, tm, repo)
	je, se := newExecution()

	err := step.Execute(context.Background(), je, se)
	assert.ErrorContains(t, err, "database is locked")
	assert.Equal(t, model.BatchStatusFailed, se.Status)
	tk.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestTaskletStep_CommitFailureDropsHooks(t *testing.T) {
	tk := new(MockTasklet)
	repo := new(batchtest.MockStepRepository)
	tm := new(batchtest.MockTxManager)
	current := new(batchtest.MockTx)
	committed := false

	tk.On("Execute", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		c, _ := tx.FromContext(args.Get(0).(context.Context))
		_, err := c.ExecuteUpdate(args.Get(0).(context.Context), "orders", tx.OperationDelete, "", nil)
		require.NoError(t, err)
		c.AfterCommit(func() { committed = true })
	}).Return(model.ExitStatusCompleted, nil)
	tk.On("Close", mock.Anything).Return(nil)
	repo.On("UpdateStepExecution", mock.Anything, mock.Anything).Return(nil)
	current.On("ExecuteUpdate", mock.Anything, "orders", tx.OperationDelete, "", mock.Anything).Return(int64(3), nil)
	tm.On("Begin", mock.Anything).Return(current, nil)
	tm.On("Commit", current).Return(errors.New("disk I/O error"))

	step := tasklet.NewTaskletStep("setupOrdersStep", tk, tm, repo)
	je, se := newExecution()

	err := step.Execute(context.Background(), je, se)
	assert.ErrorContains(t, err, "disk I/O error")
	assert.False(t, committed)
	assert.Equal(t, 1, se.RollbackCount)
	assert.Equal(t, 0, se.CommitCount)
	current.AssertExpectations(t)
	tm.AssertExpectations(t)
}
