package config

import "go.uber.org/fx"

// NewLoggingConfigProvider extracts and provides *LoggingConfig from *Config.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.System.Logging
}

// Module provides *Config and its derived sections to Fx. It expects an EmbeddedConfig to be supplied.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			NewOsEnvironmentExpander,
			fx.As(new(EnvironmentExpander)),
		),
		NewConfigProvider,
		NewLoggingConfigProvider,
	),
)
