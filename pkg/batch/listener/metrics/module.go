package metrics

import (
	"go.uber.org/fx"
)

// Module replaces the MetricRecorder provided by infrastructure/metrics with its asynchronous wrapper.
var Module = fx.Options(
	fx.Decorate(DecorateAsync),
)
