package logger

import (
	"strings"

	"go.uber.org/fx/fxevent"
)

// FxLoggerAdapter routes fx lifecycle events to the batch logger.
type FxLoggerAdapter struct{}

// NewFxLoggerAdapter creates a new instance of FxLoggerAdapter.
func NewFxLoggerAdapter() fxevent.Logger {
	return &FxLoggerAdapter{}
}

// LogEvent logs events from Fx.
func (l *FxLoggerAdapter) LogEvent(event fxevent.Event) {
	log := With("component", "fx")
	switch e := event.(type) {
	case *fxevent.OnStartExecuting:
		log.Debugw("OnStart hook executing", "callee", shortFunctionName(e.FunctionName), "caller", e.CallerName)
	case *fxevent.OnStartExecuted:
		if e.Err != nil {
			log.Errorw("OnStart hook failed", "callee", shortFunctionName(e.FunctionName), "error", e.Err)
		} else {
			log.Debugw("OnStart hook executed", "callee", shortFunctionName(e.FunctionName), "runtime", e.Runtime)
		}
	case *fxevent.OnStopExecuting:
		log.Debugw("OnStop hook executing", "callee", shortFunctionName(e.FunctionName))
	case *fxevent.OnStopExecuted:
		if e.Err != nil {
			log.Errorw("OnStop hook failed", "callee", shortFunctionName(e.FunctionName), "error", e.Err)
		} else {
			log.Debugw("OnStop hook executed", "callee", shortFunctionName(e.FunctionName), "runtime", e.Runtime)
		}
	case *fxevent.Supplied:
		if e.Err != nil {
			log.Errorw("supply failed", "type", e.TypeName, "error", e.Err)
		}
	case *fxevent.Provided:
		if e.Err != nil {
			log.Errorw("provide failed", "constructor", shortFunctionName(e.ConstructorName), "error", e.Err)
			return
		}
		for _, rtype := range e.OutputTypeNames {
			log.Debugw("provided", "type", rtype)
		}
	case *fxevent.Invoking:
		log.Debugw("invoking", "function", shortFunctionName(e.FunctionName))
	case *fxevent.Invoked:
		if e.Err != nil {
			log.Errorw("invoke failed", "function", e.FunctionName, "error", e.Err)
		}
	case *fxevent.Stopping:
		log.Infow("stopping", "signal", e.Signal.String())
	case *fxevent.Stopped:
		if e.Err != nil {
			log.Errorw("stop failed", "error", e.Err)
		}
	case *fxevent.RollingBack:
		log.Errorw("start failed, rolling back", "error", e.StartErr)
	case *fxevent.RolledBack:
		if e.Err != nil {
			log.Errorw("rollback failed", "error", e.Err)
		}
	case *fxevent.Started:
		if e.Err != nil {
			log.Errorw("start failed", "error", e.Err)
		} else {
			log.Infow("application started")
		}
	case *fxevent.LoggerInitialized:
		if e.Err != nil {
			log.Errorw("logger initialization failed", "error", e.Err)
		}
	}
}

// shortFunctionName drops the ".funcN" suffix fx reports for closures.
func shortFunctionName(funcName string) string {
	if idx := strings.LastIndex(funcName, ".func"); idx != -1 {
		return funcName[:idx]
	}
	return funcName
}
