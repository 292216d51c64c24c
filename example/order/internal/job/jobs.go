package job

import (
	"fmt"
	"io/fs"
	"time"

	appconfig "github.com/tigerroll/chunkbatch/example/order/internal/config"
	"github.com/tigerroll/chunkbatch/example/order/internal/domain"
	"github.com/tigerroll/chunkbatch/example/order/internal/step/processor"
	"github.com/tigerroll/chunkbatch/example/order/internal/step/reader"
	"github.com/tigerroll/chunkbatch/example/order/internal/step/tasklet"
	"github.com/tigerroll/chunkbatch/example/order/internal/step/writer"
	"github.com/tigerroll/chunkbatch/pkg/batch/component/tasklet/migration"
	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/item"
	steptasklet "github.com/tigerroll/chunkbatch/pkg/batch/engine/step/tasklet"
)

// Job names.
const (
	CsvToDbJob       = "csvToDbJob"
	OrderProcessJob  = "orderProcessJob"
	FaultTolerantJob = "faultTolerantJob"
	ParameterJob     = "parameterJob"
	SetupOrdersJob   = "setupOrdersJob"
	MigrateJob       = "migrateJob"
)

// NewCsvToDbJob loads the customers CSV into the customers table.
func NewCsvToDbJob(env Env) (*runner.LinearJob, error) {
	st := env.Settings.Step(appconfig.CustomerImportStep)
	return runner.NewLinearJob(CsvToDbJob, env.Repo, []runner.StepDefinition{
		runner.Scoped(appconfig.CustomerImportStep, func(model.JobParameters) (port.Step, error) {
			return item.NewChunkStep[domain.Customer, domain.Customer](
				appconfig.CustomerImportStep,
				reader.NewCustomerReader(env.Customers),
				nil,
				writer.NewCustomerWriter(),
				st.ChunkSize, env.TxManager, env.Repo,
				env.chunkOptions(st.Fault)...,
			)
		}),
	}, env.jobOptions()...)
}

// NewOrderProcessJob settles the PENDING orders older than the configured minimum age.
func NewOrderProcessJob(env Env) (*runner.LinearJob, error) {
	st := env.Settings.Step(appconfig.OrderProcessStep)
	minAge := env.Settings.PendingMinAgeMinutes
	return runner.NewLinearJob(OrderProcessJob, env.Repo, []runner.StepDefinition{
		runner.Scoped(appconfig.OrderProcessStep, func(model.JobParameters) (port.Step, error) {
			cutoff := env.now().Add(-minutes(minAge))
			return item.NewChunkStep[domain.Order, domain.Order](
				appconfig.OrderProcessStep,
				reader.NewPendingOrderReader("pendingOrderReader", env.DB, cutoff),
				processor.NewAmountRuleProcessor(env.now),
				writer.NewOrderStatusWriter("orderStatusWriter"),
				st.ChunkSize, env.TxManager, env.Repo,
				env.chunkOptions(st.Fault)...,
			)
		}),
	}, env.jobOptions()...)
}

// NewFaultTolerantJob settles pending orders like orderProcessJob, skipping broken orders and retrying
// transient failures within the configured limits.
func NewFaultTolerantJob(env Env) (*runner.LinearJob, error) {
	st := env.Settings.Step(appconfig.FaultTolerantStep)
	minAge := env.Settings.PendingMinAgeMinutes
	return runner.NewLinearJob(FaultTolerantJob, env.Repo, []runner.StepDefinition{
		runner.Scoped(appconfig.FaultTolerantStep, func(model.JobParameters) (port.Step, error) {
			cutoff := env.now().Add(-minutes(minAge))
			return item.NewChunkStep[domain.Order, domain.Order](
				appconfig.FaultTolerantStep,
				reader.NewPendingOrderReader("faultTolerantOrderReader", env.DB, cutoff),
				processor.NewFaultTolerantProcessor(env.now),
				writer.NewOrderStatusWriter("faultTolerantWriter"),
				st.ChunkSize, env.TxManager, env.Repo,
				env.chunkOptions(st.Fault)...,
			)
		}),
	}, env.jobOptions()...)
}

// NewParameterJob settles the pending orders selected by its parameters and exports the settled
// orders of the same range to parquet.
func NewParameterJob(env Env) (*runner.LinearJob, error) {
	processSt := env.Settings.Step(appconfig.ParameterStep)
	exportSt := env.Settings.Step(appconfig.ExportStep)
	return runner.NewLinearJob(ParameterJob, env.Repo, []runner.StepDefinition{
		runner.Scoped(appconfig.ParameterStep, func(params model.JobParameters) (port.Step, error) {
			args, err := ParseOrderParameters(params)
			if err != nil {
				return nil, err
			}
			return item.NewChunkStep[domain.Order, domain.Order](
				appconfig.ParameterStep,
				reader.NewPendingInRangeReader(env.DB, args.Range),
				processor.NewModeProcessor(args.Mode, env.now),
				writer.NewOrderStatusWriter("parameterOrderWriter"),
				processSt.ChunkSize, env.TxManager, env.Repo,
				env.chunkOptions(processSt.Fault)...,
			)
		}),
		runner.Scoped(appconfig.ExportStep, func(params model.JobParameters) (port.Step, error) {
			args, err := ParseOrderParameters(params)
			if err != nil {
				return nil, err
			}
			exporter, err := writer.NewOrderExportWriter(env.Settings.Export, env.Storage)
			if err != nil {
				return nil, err
			}
			return item.NewChunkStep[domain.Order, domain.OrderRecord](
				appconfig.ExportStep,
				reader.NewProcessedInRangeReader(env.DB, args.Range),
				processor.NewRecordProcessor(),
				exporter,
				exportSt.ChunkSize, env.TxManager, env.Repo,
				env.chunkOptions(exportSt.Fault)...,
			)
		}),
	}, env.jobOptions(runner.WithValidator(NewOrderParametersValidator()))...)
}

// NewSetupOrdersJob replaces the orders table with freshly generated PENDING orders.
func NewSetupOrdersJob(env Env) (*runner.LinearJob, error) {
	count := env.Settings.SetupOrderCount
	return runner.NewLinearJob(SetupOrdersJob, env.Repo, []runner.StepDefinition{
		runner.Scoped("setupOrdersStep", func(model.JobParameters) (port.Step, error) {
			return steptasklet.NewTaskletStep("setupOrdersStep",
				tasklet.NewSetupOrdersTasklet(env.Generator, count, env.now),
				env.TxManager, env.Repo, env.taskletOptions()...), nil
		}),
	}, env.jobOptions()...)
}

// NewMigrateJob applies the bundled schema migrations. The optional STRING parameter "command" is
// "up" (default) or "down".
func NewMigrateJob(env Env) (*runner.LinearJob, error) {
	if env.Migrations == nil || env.Resources == nil {
		return nil, fmt.Errorf("%s requires migrations and resources", MigrateJob)
	}
	scripts, err := fs.Sub(env.Resources, MigrationsDir)
	if err != nil {
		return nil, err
	}
	dbRef := env.Settings.DBRef
	validator := runner.NewParametersValidator(nil, map[string]model.ParameterType{
		"command":   model.ParameterTypeString,
		"timestamp": model.ParameterTypeLong,
	})
	return runner.NewLinearJob(MigrateJob, env.Repo, []runner.StepDefinition{
		runner.Scoped("migrateStep", func(params model.JobParameters) (port.Step, error) {
			command, _ := params.GetString("command")
			t, err := env.Migrations.NewTasklet("schemaMigration", migration.TaskletConfig{
				DBRef:   dbRef,
				FS:      scripts,
				Command: command,
			})
			if err != nil {
				return nil, err
			}
			return steptasklet.NewTaskletStep("migrateStep", t, tx.NewResourcelessTransactionManager(), env.Repo, env.taskletOptions()...), nil
		}),
	}, env.jobOptions(runner.WithValidator(validator))...)
}

func minutes(n int) time.Duration {
	return time.Duration(n) * time.Minute
}
