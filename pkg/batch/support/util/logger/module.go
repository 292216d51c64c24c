package logger

import "go.uber.org/fx"

// Module sends fx lifecycle events (provides, invokes, hooks) to this package's logger
// instead of fx's default console printer.
var Module = fx.WithLogger(NewFxLoggerAdapter)
