package sql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/chunkbatch/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// RepositoryParams holds the dependencies of the SQL job repository.
type RepositoryParams struct {
	fx.In
	Resolver  database.DBConnectionResolver
	TxFactory *gormadapter.GormTransactionManagerFactory
	Cfg       *config.Config
}

// RepositoryResult exposes the repository and the transaction manager of the metadata database.
type RepositoryResult struct {
	fx.Out
	Repository repository.JobRepository
	TxManager  tx.TransactionManager
}

// NewRepositoryProvider builds the repository on the connection named by infrastructure.job_repository_db_ref.
func NewRepositoryProvider(p RepositoryParams) RepositoryResult {
	dbName := p.Cfg.Infrastructure.JobRepositoryDBRef
	txManager := p.TxFactory.NewTransactionManager(dbName)
	return RepositoryResult{
		Repository: NewSQLJobRepository(p.Resolver, txManager, dbName),
		TxManager:  txManager,
	}
}

// Module provides the SQL job repository. It requires the gorm adapter module and at least one DB provider.
var Module = fx.Options(
	fx.Provide(NewRepositoryProvider),
)
