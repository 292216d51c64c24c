package tracing

import (
	"go.uber.org/fx"
)

// Module provides the tracing Listener. The Tracer comes from infrastructure/metrics.
var Module = fx.Options(
	fx.Provide(NewListener),
)
