// Package test holds testify mocks and fixtures shared by the tests of the batch packages.
package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// MockTx is a mock implementation of the tx.Tx interface.
// AfterCommit hooks are recorded, not mocked. MockTxManager.Commit runs them.
type MockTx struct {
	mock.Mock
	tx.Hooks
}

var _ tx.Tx = (*MockTx)(nil)

// ExecuteUpdate mocks tx.TxExecutor.ExecuteUpdate.
func (m *MockTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, model, operation, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

// ExecuteUpsert mocks tx.TxExecutor.ExecuteUpsert.
func (m *MockTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	args := m.Called(ctx, model, tableName, conflictColumns, updateColumns)
	return args.Get(0).(int64), args.Error(1)
}

// MockTxManager is a mock implementation of the tx.TransactionManager interface.
type MockTxManager struct {
	mock.Mock
}

var _ tx.TransactionManager = (*MockTxManager)(nil)

// Begin returns the tx.Tx configured with Return, or an error.
func (m *MockTxManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx)
	if t, ok := args.Get(0).(tx.Tx); ok {
		return t, args.Error(1)
	}
	return nil, args.Error(1)
}

// Commit records the call and, when it succeeds, runs the hooks of a *MockTx.
func (m *MockTxManager) Commit(t tx.Tx) error {
	if err := m.Called(t).Error(0); err != nil {
		return err
	}
	if mt, ok := t.(*MockTx); ok {
		mt.RunAfterCommit()
	}
	return nil
}

// Rollback records the call and drops the hooks of a *MockTx.
func (m *MockTxManager) Rollback(t tx.Tx) error {
	if mt, ok := t.(*MockTx); ok {
		mt.Discard()
	}
	return m.Called(t).Error(0)
}
