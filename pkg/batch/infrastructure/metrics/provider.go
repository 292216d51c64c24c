package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Exporter protocols accepted in ExporterConfig.Protocol.
const (
	ProtocolGRPC = "grpc"
	ProtocolHTTP = "http"
	ProtocolNone = "none"
)

func newResource(serviceName string) *resource.Resource {
	return resource.NewSchemaless(attribute.String("service.name", serviceName))
}

// NewTracerProvider builds an SDK tracer provider exporting over OTLP as configured.
// With protocol "none" spans are sampled and kept in process only, which still feeds span listeners.
func NewTracerProvider(ctx context.Context, cfg config.ObservabilityConfig) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(newResource(cfg.ServiceName)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
	}
	exp := cfg.Tracing.Exporter
	switch exp.Protocol {
	case ProtocolGRPC:
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(exp.Endpoint)}
		if exp.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP gRPC trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case ProtocolHTTP:
		httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(exp.Endpoint)}
		if exp.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		exporter, err := otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP HTTP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	case ProtocolNone, "":
	default:
		return nil, fmt.Errorf("unknown trace exporter protocol '%s'", exp.Protocol)
	}
	logger.Infof("Tracing: OpenTelemetry tracer provider created (exporter: %s).", exp.Protocol)
	return sdktrace.NewTracerProvider(opts...), nil
}

// NewMeterProvider builds an SDK meter provider with a periodic OTLP reader as configured.
// extra readers (for example a manual reader in tests) are attached as well.
func NewMeterProvider(ctx context.Context, cfg config.ObservabilityConfig, extra ...sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(newResource(cfg.ServiceName))}
	for _, r := range extra {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	exp := cfg.Metrics.Exporter
	var exporter sdkmetric.Exporter
	var err error
	switch exp.Protocol {
	case ProtocolGRPC:
		grpcOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(exp.Endpoint)}
		if exp.Insecure {
			grpcOpts = append(grpcOpts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, grpcOpts...)
	case ProtocolHTTP:
		httpOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(exp.Endpoint)}
		if exp.Insecure {
			httpOpts = append(httpOpts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, httpOpts...)
	case ProtocolNone, "":
	default:
		return nil, fmt.Errorf("unknown metric exporter protocol '%s'", exp.Protocol)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP %s metric exporter: %w", exp.Protocol, err)
	}
	if exporter != nil {
		interval := time.Duration(cfg.Metrics.ExportIntervalSeconds) * time.Second
		if interval <= 0 {
			interval = 15 * time.Second
		}
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))))
	}
	return sdkmetric.NewMeterProvider(opts...), nil
}
