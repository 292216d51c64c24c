package api

import (
	"context"
	"net"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	inframetrics "github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ShortcutGroup is the fx value group collecting Shortcut registrations.
const ShortcutGroup = "api_shortcuts"

// HandlerParams are the dependencies of NewHandlerFromParams.
type HandlerParams struct {
	fx.In
	Cfg        *config.Config
	Launcher   usecase.JobLauncher
	Operator   usecase.JobOperator
	Explorer   usecase.JobExplorer
	Registry   *usecase.JobRegistry
	Prometheus *inframetrics.PrometheusRecorder `optional:"true"`
	Shortcuts  []Shortcut                       `group:"api_shortcuts"`
}

// NewHandlerFromParams builds the Handler. /metrics is served when Prometheus metrics are enabled.
func NewHandlerFromParams(p HandlerParams) *Handler {
	opts := []Option{WithShortcuts(p.Shortcuts...)}
	if p.Prometheus != nil && p.Cfg.Observability.Metrics.PrometheusEnabled {
		opts = append(opts, WithMetricsHandler(p.Prometheus.Handler()))
	}
	return NewHandler(p.Launcher, p.Operator, p.Explorer, p.Registry, opts...)
}

// AsShortcut supplies a Shortcut to the handler.
func AsShortcut(path, jobName string) fx.Option {
	return fx.Provide(fx.Annotate(
		func() Shortcut { return Shortcut{Path: path, JobName: jobName} },
		fx.ResultTags(`group:"api_shortcuts"`),
	))
}

func registerServer(lc fx.Lifecycle, cfg *config.Config, h *Handler, shutdowner fx.Shutdowner) {
	server := NewServer(cfg.Server, h.Routes())
	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Server.Address)
			if err != nil {
				cancel()
				return err
			}
			go func() {
				defer close(done)
				if err := server.Serve(runCtx, ln); err != nil {
					logger.Errorf("Batch API stopped with error: %v", err)
					if err := shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
						logger.Errorf("Failed to request shutdown: %v", err)
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

// Module serves the trigger API on server.address for the lifetime of the application.
var Module = fx.Options(
	fx.Provide(NewHandlerFromParams),
	fx.Invoke(registerServer),
)
