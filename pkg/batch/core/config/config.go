// Package config provides structures and utilities for managing application configuration.
package config

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// ItemRetryConfig holds item-level retry configuration.
type ItemRetryConfig struct {
	MaxAttempts         int      `yaml:"max_attempts"`         // Re-attempts per item after the first failure.
	InitialInterval     int      `yaml:"initial_interval"`     // Initial backoff in milliseconds. 0 disables backoff.
	MaxInterval         int      `yaml:"max_interval"`         // Backoff cap in milliseconds.
	Factor              float64  `yaml:"factor"`               // Backoff multiplier.
	RetryableExceptions []string `yaml:"retryable_exceptions"` // Registered error type names.
}

// ItemSkipConfig holds item-level skip configuration.
type ItemSkipConfig struct {
	SkipLimit           int      `yaml:"skip_limit"`           // Maximum number of items to skip per step execution.
	SkippableExceptions []string `yaml:"skippable_exceptions"` // Registered error type names.
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// MaskedParameterKeys is a list of keys in JobParameters whose values should be masked in logs and reports.
	MaskedParameterKeys []string `yaml:"masked_parameter_keys"`
}

// BatchConfig holds configuration specific to the batch processing engine.
type BatchConfig struct {
	// ChunkSize is the default chunk size for chunk-oriented steps.
	ChunkSize int `yaml:"chunk_size"`
	// IsolationLevel is the default isolation level of chunk transactions (e.g. "READ_COMMITTED").
	IsolationLevel string `yaml:"isolation_level"`
	// ItemRetry is the item-level retry configuration.
	ItemRetry ItemRetryConfig `yaml:"item_retry"`
	// ItemSkip is the item-level skip configuration.
	ItemSkip ItemSkipConfig `yaml:"item_skip"`
	// MetricsAsyncBufferSize is the buffer size for asynchronous metric recording.
	MetricsAsyncBufferSize int `yaml:"metrics_async_buffer_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is the application timezone (e.g., "UTC", "Asia/Tokyo").
	Timezone string `yaml:"timezone"`
	// Logging is the logging configuration.
	Logging LoggingConfig `yaml:"logging"`
}

// InfrastructureConfig holds logical dependency settings for infrastructure components.
type InfrastructureConfig struct {
	// JobRepositoryType selects the repository implementation: "sql" or "inmemory".
	JobRepositoryType string `yaml:"job_repository_type"`
	// JobRepositoryDBRef is the name of the database connection used by the SQL JobRepository.
	JobRepositoryDBRef string `yaml:"job_repository_db_ref"`
}

// ExporterConfig selects an OTLP exporter.
type ExporterConfig struct {
	// Protocol is "grpc", "http" or "none".
	Protocol string `yaml:"protocol"`
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// MetricsConfig configures the metric recorders.
type MetricsConfig struct {
	PrometheusEnabled bool           `yaml:"prometheus_enabled"`
	OTelEnabled       bool           `yaml:"otel_enabled"`
	Exporter          ExporterConfig `yaml:"exporter"`
	// ExportIntervalSeconds is the period of the OTel periodic reader.
	ExportIntervalSeconds int `yaml:"export_interval_seconds"`
}

// TracingConfig configures the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled     bool           `yaml:"enabled"`
	Exporter    ExporterConfig `yaml:"exporter"`
	SampleRatio float64        `yaml:"sample_ratio"`
}

// ObservabilityConfig groups metrics and tracing settings.
type ObservabilityConfig struct {
	ServiceName string        `yaml:"service_name"`
	Metrics     MetricsConfig `yaml:"metrics"`
	Tracing     TracingConfig `yaml:"tracing"`
}

// ServerConfig configures the HTTP trigger.
type ServerConfig struct {
	Address                string `yaml:"address"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds"`
}

// ScheduleEntryConfig schedules one job.
type ScheduleEntryConfig struct {
	JobName string `yaml:"job_name"`
	// Spec is a cron expression or a descriptor such as "@every 30s".
	Spec string `yaml:"spec"`
	// Parameters are added to every scheduled launch, in "key(type)=value" form.
	Parameters []string `yaml:"parameters"`
}

// SchedulerConfig configures the cron trigger.
type SchedulerConfig struct {
	Enabled bool `yaml:"enabled"`
	// OverlapPolicy is "skip-if-running", "run-concurrently" or "queue".
	OverlapPolicy string                `yaml:"overlap_policy"`
	Entries       []ScheduleEntryConfig `yaml:"entries"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	Batch          BatchConfig          `yaml:"batch"`
	System         SystemConfig         `yaml:"system"`
	Infrastructure InfrastructureConfig `yaml:"infrastructure"`
	Security       SecurityConfig       `yaml:"security"`
	// Database holds the named database connections. Each entry is decoded by its provider.
	Database map[string]interface{} `yaml:"database"`
	// Storage holds the named storage connections. Each entry is decoded by its provider.
	Storage       map[string]interface{} `yaml:"storage"`
	Observability ObservabilityConfig    `yaml:"observability"`
	Server        ServerConfig           `yaml:"server"`
	Scheduler     SchedulerConfig        `yaml:"scheduler"`
	// App holds settings of the application built on the framework, decoded by it with DecodeSection.
	App map[string]interface{} `yaml:"app"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	return &Config{
		System: SystemConfig{
			Timezone: "UTC",
			Logging:  LoggingConfig{Level: "INFO"},
		},
		Batch: BatchConfig{
			ChunkSize:              10,
			MetricsAsyncBufferSize: 100,
			ItemRetry: ItemRetryConfig{
				MaxAttempts: 0,
				Factor:      2.0,
			},
		},
		Infrastructure: InfrastructureConfig{
			JobRepositoryType:  "inmemory",
			JobRepositoryDBRef: "metadata",
		},
		Security: SecurityConfig{
			MaskedParameterKeys: []string{"password", "api_key", "secret"},
		},
		Database: map[string]interface{}{},
		Storage:  map[string]interface{}{},
		App:      map[string]interface{}{},
		Observability: ObservabilityConfig{
			ServiceName: "chunkbatch",
			Metrics: MetricsConfig{
				ExportIntervalSeconds: 15,
				Exporter:              ExporterConfig{Protocol: "none"},
			},
			Tracing: TracingConfig{
				Exporter:    ExporterConfig{Protocol: "none"},
				SampleRatio: 1.0,
			},
		},
		Server: ServerConfig{
			Address:                ":8080",
			ShutdownTimeoutSeconds: 10,
		},
		Scheduler: SchedulerConfig{
			OverlapPolicy: "skip-if-running",
		},
	}
}
