package job

import (
	"go.uber.org/fx"

	usecase "github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
)

// Module provides the job environment and registers every order job with the job registry.
var Module = fx.Options(
	fx.Provide(NewEnv),
	fx.Provide(
		usecase.AsJob(NewCsvToDbJob),
		usecase.AsJob(NewOrderProcessJob),
		usecase.AsJob(NewFaultTolerantJob),
		usecase.AsJob(NewParameterJob),
		usecase.AsJob(NewSetupOrdersJob),
		usecase.AsJob(NewMigrateJob),
	),
)
