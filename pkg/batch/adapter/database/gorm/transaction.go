package gorm

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// GormTxAdapter implements tx.Tx on an open gorm transaction.
// It also implements database.DBExecutor so repositories can read inside the transaction.
type GormTxAdapter struct {
	executor
	tx.Hooks
}

var (
	_ tx.Tx               = (*GormTxAdapter)(nil)
	_ database.DBExecutor = (*GormTxAdapter)(nil)
)

// GormTransactionManager implements tx.TransactionManager.
type GormTransactionManager struct {
	resolve func(ctx context.Context) (*gorm.DB, error)
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)

// NewGormTransactionManager creates a transaction manager for the named connection.
// The connection is resolved on every Begin so reconnects are picked up.
func NewGormTransactionManager(resolver database.DBConnectionResolver, dbName string) *GormTransactionManager {
	return &GormTransactionManager{
		resolve: func(ctx context.Context) (*gorm.DB, error) {
			conn, err := resolver.ResolveDBConnection(ctx, dbName)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve DB connection '%s' for transaction: %w", dbName, err)
			}
			adapter, ok := conn.(*GormDBAdapter)
			if !ok {
				return nil, fmt.Errorf("DB connection '%s' is %T, not a gorm connection", dbName, conn)
			}
			return adapter.GetGormDB(), nil
		},
	}
}

// NewGormTransactionManagerForDB creates a transaction manager on a fixed *gorm.DB.
func NewGormTransactionManagerForDB(db *gorm.DB) *GormTransactionManager {
	return &GormTransactionManager{
		resolve: func(context.Context) (*gorm.DB, error) { return db, nil },
	}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	db, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}
	gormTx := db.WithContext(ctx).Begin(txOpts)
	if gormTx.Error != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", gormTx.Error)
	}
	return &GormTxAdapter{executor: executor{db: gormTx}}, nil
}

// Commit implements tx.TransactionManager. AfterCommit hooks run only after a successful commit.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gormTx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	if err := gormTx.db.Commit().Error; err != nil {
		gormTx.Discard()
		return err
	}
	gormTx.RunAfterCommit()
	return nil
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gormTx, ok := t.(*GormTxAdapter)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTxAdapter, got %T", t)
	}
	gormTx.Discard()
	return gormTx.db.Rollback().Error
}

// GormTransactionManagerFactory creates transaction managers for named connections.
type GormTransactionManagerFactory struct {
	resolver database.DBConnectionResolver
}

// NewGormTransactionManagerFactory creates an instance of GormTransactionManagerFactory.
func NewGormTransactionManagerFactory(resolver database.DBConnectionResolver) *GormTransactionManagerFactory {
	return &GormTransactionManagerFactory{resolver: resolver}
}

// NewTransactionManager creates a transaction manager for the named connection.
func (f *GormTransactionManagerFactory) NewTransactionManager(dbName string) tx.TransactionManager {
	return NewGormTransactionManager(f.resolver, dbName)
}
