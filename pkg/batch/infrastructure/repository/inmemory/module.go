package inmemory

import (
	"go.uber.org/fx"

	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
)

// Module is an Fx module that provides InMemoryJobRepository as a repository.JobRepository interface.
// Jobs that run against it use a resourceless transaction manager.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewInMemoryJobRepository,
			fx.As(new(repository.JobRepository)),
		),
		fx.Annotate(
			tx.NewResourcelessTransactionManager,
			fx.As(new(tx.TransactionManager)),
		),
	),
)
