package scheduler

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// EntryGroup is the fx value group collecting code-defined entries.
const EntryGroup = "schedule_entries"

// Params are the dependencies of NewSchedulerFromConfig.
type Params struct {
	fx.In
	Cfg      *config.Config
	Launcher usecase.JobLauncher
	Explorer usecase.JobExplorer
	Entries  []Entry `group:"schedule_entries"`
}

// AsEntry contributes e to the scheduler.
func AsEntry(e Entry) fx.Option {
	return fx.Provide(fx.Annotate(
		func() Entry { return e },
		fx.ResultTags(`group:"schedule_entries"`),
	))
}

// NewSchedulerFromConfig builds a scheduler holding the code-defined entries followed by the configured ones.
func NewSchedulerFromConfig(p Params) (*Scheduler, error) {
	policy, err := ParseOverlapPolicy(p.Cfg.Scheduler.OverlapPolicy)
	if err != nil {
		return nil, err
	}
	loc := time.Local
	if tz := p.Cfg.System.Timezone; tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			return nil, err
		}
	}
	s := NewScheduler(p.Launcher, p.Explorer, policy, WithLocation(loc))
	for _, e := range p.Entries {
		if _, err := s.Add(e); err != nil {
			return nil, err
		}
	}
	for _, ec := range p.Cfg.Scheduler.Entries {
		if _, err := s.Add(Entry{JobName: ec.JobName, Spec: ec.Spec, Parameters: TimestampParameters(ec.Parameters...)}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func registerScheduler(lc fx.Lifecycle, cfg *config.Config, s *Scheduler) {
	if !cfg.Scheduler.Enabled {
		logger.Infof("Scheduler is disabled.")
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			s.Start()
			return nil
		},
		OnStop: s.Stop,
	})
}

// Module runs the scheduler when scheduler.enabled is set.
var Module = fx.Options(
	fx.Provide(NewSchedulerFromConfig),
	fx.Invoke(registerScheduler),
)
