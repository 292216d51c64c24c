package usecase

import (
	"context"

	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// RegistryParams collects the jobs contributed to the "jobs" group.
type RegistryParams struct {
	fx.In
	Jobs []port.Job `group:"jobs"`
}

// NewJobRegistryFromParams builds the registry from the "jobs" group.
func NewJobRegistryFromParams(p RegistryParams) *JobRegistry {
	return NewJobRegistry(p.Jobs...)
}

// AsJob annotates a job constructor so that its result joins the "jobs" group.
func AsJob(constructor interface{}) interface{} {
	return fx.Annotate(constructor, fx.As(new(port.Job)), fx.ResultTags(`group:"jobs"`))
}

// Module is the Fx module for JobLauncher, JobOperator, and JobExplorer.
var Module = fx.Options(
	fx.Provide(NewJobRegistryFromParams),
	fx.Provide(NewSimpleJobLauncher),
	fx.Provide(func(l *SimpleJobLauncher) JobLauncher { return l }),
	fx.Provide(fx.Annotate(
		NewDefaultJobOperator,
		fx.As(new(JobOperator)),
	)),
	fx.Provide(fx.Annotate(
		NewSimpleJobExplorer,
		fx.As(new(JobExplorer)),
	)),
	fx.Invoke(func(lc fx.Lifecycle, l *SimpleJobLauncher) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return l.Shutdown(ctx)
			},
		})
	}),
)
