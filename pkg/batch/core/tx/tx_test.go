package tx_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

func TestResourceless_CommitRunsHooks(t *testing.T) {
	tm := tx.NewResourcelessTransactionManager()
	ctx := context.Background()

	t1, err := tm.Begin(ctx)
	require.NoError(t, err)
	var ran []string
	t1.AfterCommit(func() { ran = append(ran, "a") })
	t1.AfterCommit(func() { ran = append(ran, "b") })
	assert.Empty(t, ran)

	require.NoError(t, tm.Commit(t1))
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.ErrorIs(t, tm.Commit(t1), tx.ErrTxFinished)
}

func TestResourceless_RollbackDiscardsHooks(t *testing.T) {
	tm := tx.NewResourcelessTransactionManager()
	t1, err := tm.Begin(context.Background())
	require.NoError(t, err)

	called := false
	t1.AfterCommit(func() { called = true })
	require.NoError(t, tm.Rollback(t1))
	assert.False(t, called)
	assert.ErrorIs(t, tm.Rollback(t1), tx.ErrTxFinished)

	_, err = t1.ExecuteUpdate(context.Background(), struct{}{}, tx.OperationCreate, "", nil)
	assert.Error(t, err)
}

func TestResourceless_BeginHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := tx.NewResourcelessTransactionManager().Begin(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestContextCarriesTx(t *testing.T) {
	tm := tx.NewResourcelessTransactionManager()
	t1, err := tm.Begin(context.Background())
	require.NoError(t, err)

	_, ok := tx.FromContext(context.Background())
	assert.False(t, ok)

	got, ok := tx.FromContext(tx.WithTx(context.Background(), t1))
	require.True(t, ok)
	assert.Same(t, t1, got)
}
