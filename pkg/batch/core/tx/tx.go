// Package tx abstracts the transaction that wraps one chunk.
// A chunk's writes and the hooks registered on its transaction either all take effect on commit
// or none of them do.
package tx

import (
	"context"
	"database/sql"
)

// Operations accepted by TxExecutor.ExecuteUpdate.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
	OperationDelete = "DELETE"
)

// TxExecutor defines the write operations a sink may perform inside a transaction.
type TxExecutor interface {
	// ExecuteUpdate performs INSERT ("CREATE"), UPDATE or DELETE on model.
	// tableName overrides the model's table when non-empty. query holds AND-combined column
	// conditions for UPDATE and DELETE.
	ExecuteUpdate(ctx context.Context, model interface{}, operation string, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// ExecuteUpsert inserts model, updating updateColumns when a row with the same conflictColumns
	// exists. With no updateColumns a conflict is ignored (DO NOTHING).
	ExecuteUpsert(ctx context.Context, model interface{}, tableName string, conflictColumns []string, updateColumns []string) (rowsAffected int64, err error)
}

// Tx represents an ongoing transaction.
type Tx interface {
	TxExecutor

	// AfterCommit registers fn to run once the transaction has committed.
	// Hooks are discarded on rollback.
	AfterCommit(fn func())
}

// TransactionManager manages the lifecycle of transactions.
type TransactionManager interface {
	// Begin starts a new transaction. opts optionally sets the isolation level or read-only flag.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits tx and then runs its AfterCommit hooks.
	Commit(tx Tx) error
	// Rollback rolls back tx.
	Rollback(tx Tx) error
}

type txKey struct{}

// WithTx returns a context carrying tx.
func WithTx(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// FromContext returns the transaction stored by WithTx.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok && t != nil
}

// Hooks collects AfterCommit callbacks. Transaction implementations embed it.
type Hooks struct {
	fns []func()
}

// AfterCommit implements Tx.
func (h *Hooks) AfterCommit(fn func()) {
	if fn != nil {
		h.fns = append(h.fns, fn)
	}
}

// RunAfterCommit runs and clears the registered hooks.
func (h *Hooks) RunAfterCommit() {
	fns := h.fns
	h.fns = nil
	for _, fn := range fns {
		fn()
	}
}

// Discard drops the registered hooks.
func (h *Hooks) Discard() {
	h.fns = nil
}

// ParseIsolationLevel converts a configured isolation level name such as "READ_COMMITTED" to
// sql.IsolationLevel. Unknown names select the database default.
func ParseIsolationLevel(level string) sql.IsolationLevel {
	switch level {
	case "READ_UNCOMMITTED":
		return sql.LevelReadUncommitted
	case "READ_COMMITTED":
		return sql.LevelReadCommitted
	case "WRITE_COMMITTED":
		return sql.LevelWriteCommitted
	case "REPEATABLE_READ":
		return sql.LevelRepeatableRead
	case "SERIALIZABLE":
		return sql.LevelSerializable
	default:
		return sql.LevelDefault
	}
}
