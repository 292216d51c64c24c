package logging

import (
	"go.uber.org/fx"

	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
)

// NewListenerFromConfig creates the logging listener. Items are logged only at DEBUG level.
func NewListenerFromConfig(cfg *config.Config) *Listener {
	l := NewListener()
	l.LogItems = cfg.System.Logging.Level == "DEBUG"
	return l
}

// Module provides the logging Listener.
var Module = fx.Options(
	fx.Provide(NewListenerFromConfig),
)
