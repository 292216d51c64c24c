package app

import (
	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/example/order/internal/job"
	"github.com/tigerroll/chunkbatch/pkg/batch/trigger/api"
	"github.com/tigerroll/chunkbatch/pkg/batch/trigger/scheduler"
)

// ParameterJobSpec is the schedule of the periodic parameterJob run.
const ParameterJobSpec = "@every 30s"

// TriggerModules adds the HTTP API with the order shortcuts and the scheduler with the periodic
// parameterJob run. The scheduler only starts when scheduler.enabled is set.
func TriggerModules() fx.Option {
	return fx.Options(
		api.Module,
		api.AsShortcut("csv-to-db", job.CsvToDbJob),
		api.AsShortcut("setup-orders", job.SetupOrdersJob),
		api.AsShortcut("process-orders", job.OrderProcessJob),
		api.AsShortcut("fault-tolerant", job.FaultTolerantJob),
		scheduler.Module,
		scheduler.AsEntry(scheduler.Entry{
			JobName:    job.ParameterJob,
			Spec:       ParameterJobSpec,
			Parameters: job.ScheduledOrderParameters,
		}),
	)
}
