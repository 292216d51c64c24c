package tx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// ErrTxFinished is returned when a transaction is used after commit or rollback.
var ErrTxFinished = errors.New("transaction already finished")

// ResourcelessTransactionManager manages transactions that own no database resource.
// It is used for steps whose sink keeps its state in memory or in files and only needs
// commit and rollback boundaries plus AfterCommit hooks.
type ResourcelessTransactionManager struct{}

// NewResourcelessTransactionManager creates a ResourcelessTransactionManager.
func NewResourcelessTransactionManager() *ResourcelessTransactionManager {
	return &ResourcelessTransactionManager{}
}

type resourcelessTx struct {
	Hooks
	mu       sync.Mutex
	finished bool
}

// ExecuteUpdate is not supported without a database.
func (t *resourcelessTx) ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (int64, error) {
	return 0, fmt.Errorf("resourceless transaction cannot execute %s", operation)
}

// ExecuteUpsert is not supported without a database.
func (t *resourcelessTx) ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (int64, error) {
	return 0, errors.New("resourceless transaction cannot execute UPSERT")
}

func (t *resourcelessTx) finish() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return ErrTxFinished
	}
	t.finished = true
	return nil
}

// Begin implements TransactionManager.
func (m *ResourcelessTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &resourcelessTx{}, nil
}

// Commit implements TransactionManager.
func (m *ResourcelessTransactionManager) Commit(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected resourceless transaction, got %T", t)
	}
	if err := rt.finish(); err != nil {
		return err
	}
	rt.RunAfterCommit()
	return nil
}

// Rollback implements TransactionManager.
func (m *ResourcelessTransactionManager) Rollback(t Tx) error {
	rt, ok := t.(*resourcelessTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected resourceless transaction, got %T", t)
	}
	if err := rt.finish(); err != nil {
		return err
	}
	rt.Discard()
	return nil
}

var _ TransactionManager = (*ResourcelessTransactionManager)(nil)
