package incrementer

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
)

// Default parameter names.
const (
	DefaultRunIDKey     = "run.id"
	DefaultTimestampKey = "timestamp"
)

// Module provides the two incrementers by name, for jobs that want the StartNextInstance behaviour.
var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func() port.JobParametersIncrementer { return NewRunIDIncrementer(DefaultRunIDKey) },
			fx.ResultTags(`name:"runIdIncrementer"`),
		),
		fx.Annotate(
			func() port.JobParametersIncrementer { return NewTimestampIncrementer(DefaultTimestampKey) },
			fx.ResultTags(`name:"timestampIncrementer"`),
		),
	),
)
