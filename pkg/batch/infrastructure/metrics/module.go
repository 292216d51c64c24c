package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// RecorderParams are the dependencies of NewMetricRecorderFromConfig.
type RecorderParams struct {
	fx.In
	Lifecycle  fx.Lifecycle
	Cfg        *config.Config
	Prometheus *PrometheusRecorder
}

// NewMetricRecorderFromConfig fans out to the recorders enabled in the observability configuration.
func NewMetricRecorderFromConfig(p RecorderParams) (metrics.MetricRecorder, error) {
	obs := p.Cfg.Observability
	var recorders []metrics.MetricRecorder
	if obs.Metrics.PrometheusEnabled {
		recorders = append(recorders, p.Prometheus)
	}
	if obs.Metrics.OTelEnabled {
		provider, err := NewMeterProvider(context.Background(), obs)
		if err != nil {
			return nil, err
		}
		p.Lifecycle.Append(fx.Hook{OnStop: provider.Shutdown})
		rec, err := NewOpenTelemetryRecorder(provider)
		if err != nil {
			return nil, err
		}
		recorders = append(recorders, rec)
	}
	switch len(recorders) {
	case 0:
		logger.Debugf("Metrics: no recorder enabled.")
		return metrics.NewNoOpMetricRecorder(), nil
	case 1:
		return recorders[0], nil
	default:
		return metrics.NewCompositeMetricRecorder(recorders...), nil
	}
}

// NewTracerFromConfig returns an OpenTelemetry tracer when tracing is enabled and a no-op tracer otherwise.
func NewTracerFromConfig(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	if !cfg.Observability.Tracing.Enabled {
		return metrics.NewNoOpTracer(), nil
	}
	provider, err := NewTracerProvider(context.Background(), cfg.Observability)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: provider.Shutdown})
	return NewOpenTelemetryTracer(provider), nil
}

// Module provides the metric recorder, the tracer and the Prometheus recorder backing /metrics.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Provide(NewMetricRecorderFromConfig),
	fx.Provide(NewTracerFromConfig),
)
