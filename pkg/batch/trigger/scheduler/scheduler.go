// Package scheduler launches jobs on cron schedules. It keeps no run state of its own: duplicate and
// concurrent launches are rejected by the job repository.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// OverlapPolicy decides what happens when a schedule fires while the previous launch is still running.
type OverlapPolicy string

const (
	// SkipIfRunning drops the firing when this scheduler or any other process runs the job.
	SkipIfRunning OverlapPolicy = "skip-if-running"
	// RunConcurrently launches regardless. Launches with equal parameters still conflict in the repository.
	RunConcurrently OverlapPolicy = "run-concurrently"
	// Queue delays the firing until the previous launch of the same entry has finished.
	Queue OverlapPolicy = "queue"
)

// ParseOverlapPolicy parses a policy name. The empty name is SkipIfRunning.
func ParseOverlapPolicy(name string) (OverlapPolicy, error) {
	switch p := OverlapPolicy(name); p {
	case "":
		return SkipIfRunning, nil
	case SkipIfRunning, RunConcurrently, Queue:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overlap policy '%s'", name)
	}
}

// ParameterSupplier builds the parameters of one scheduled launch.
type ParameterSupplier func(now time.Time) (model.JobParameters, error)

// Entry schedules one job.
type Entry struct {
	JobName string
	// Spec is a cron expression (seconds optional) or a descriptor such as "@every 30s".
	Spec       string
	Parameters ParameterSupplier
	// Overlap overrides the scheduler's policy when set.
	Overlap OverlapPolicy
}

// TimestampParameters supplies the static args plus a "timestamp" LONG of the firing time,
// which makes every firing a new job instance.
func TimestampParameters(args ...string) ParameterSupplier {
	return func(now time.Time) (model.JobParameters, error) {
		b := model.NewJobParametersBuilder()
		for _, arg := range args {
			b.AddArg(arg)
		}
		b.AddLong("timestamp", now.UnixMilli())
		return b.Build()
	}
}

// Scheduler fires entries through a JobLauncher.
type Scheduler struct {
	cron     *cron.Cron
	launcher usecase.JobLauncher
	explorer usecase.JobExplorer
	policy   OverlapPolicy
	now      func() time.Time
	ctx      context.Context
	cancel   context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLocation evaluates cron expressions in loc.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.cron = newCron(loc) }
}

// WithClock replaces time.Now for the parameter suppliers.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func newCron(loc *time.Location) *cron.Cron {
	return cron.New(
		cron.WithLocation(loc),
		cron.WithParser(specParser),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{})),
	)
}

// NewScheduler creates a Scheduler whose entries default to policy.
func NewScheduler(launcher usecase.JobLauncher, explorer usecase.JobExplorer, policy OverlapPolicy, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:     newCron(time.Local),
		launcher: launcher,
		explorer: explorer,
		policy:   policy,
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
	}
	if s.policy == "" {
		s.policy = SkipIfRunning
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers e. The spec is validated immediately.
func (s *Scheduler) Add(e Entry) (cron.EntryID, error) {
	if e.JobName == "" {
		return 0, errors.New("schedule entry requires a job name")
	}
	if e.Parameters == nil {
		e.Parameters = TimestampParameters()
	}
	policy := e.Overlap
	if policy == "" {
		policy = s.policy
	}
	var wrappers []cron.JobWrapper
	switch policy {
	case SkipIfRunning:
		wrappers = append(wrappers, cron.SkipIfStillRunning(cronLogger{}))
	case Queue:
		wrappers = append(wrappers, cron.DelayIfStillRunning(cronLogger{}))
	case RunConcurrently:
	default:
		return 0, fmt.Errorf("schedule of '%s': unknown overlap policy '%s'", e.JobName, policy)
	}
	job := cron.NewChain(wrappers...).Then(cron.FuncJob(func() { s.fire(e, policy) }))
	id, err := s.cron.AddJob(e.Spec, job)
	if err != nil {
		return 0, fmt.Errorf("schedule of '%s': invalid spec '%s': %w", e.JobName, e.Spec, err)
	}
	logger.Infof("Scheduled Job '%s' at '%s' (overlap policy: %s).", e.JobName, e.Spec, policy)
	return id, nil
}

// Entries returns the registered cron entries.
func (s *Scheduler) Entries() []cron.Entry {
	return s.cron.Entries()
}

// Start starts firing entries in the background.
func (s *Scheduler) Start() {
	logger.Infof("Scheduler started with %d entries.", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop stops firing and waits until running launches finish or ctx is done.
// Launches still running when ctx is done are cancelled.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.cancel()
		logger.Infof("Scheduler stopped.")
		return nil
	case <-ctx.Done():
		s.cancel()
		return ctx.Err()
	}
}

// fire runs one launch in the cron goroutine, so that the overlap wrappers see it as running.
func (s *Scheduler) fire(e Entry, policy OverlapPolicy) {
	if policy == SkipIfRunning {
		running, err := s.explorer.FindRunningJobExecutions(s.ctx, e.JobName)
		if err != nil {
			logger.Errorf("Scheduler: failed to look up running executions of Job '%s': %v", e.JobName, err)
			return
		}
		if len(running) > 0 {
			logger.Infof("Scheduler: Job '%s' is still running (Execution ID: %s). Skipping this firing.", e.JobName, running[0].ID)
			return
		}
	}

	params, err := e.Parameters(s.now())
	if err != nil {
		logger.Errorf("Scheduler: failed to build parameters for Job '%s': %v", e.JobName, err)
		return
	}
	je, err := s.launcher.Run(s.ctx, e.JobName, params)
	switch {
	case errors.Is(err, exception.ErrDuplicateRun), errors.Is(err, exception.ErrConcurrentRun):
		logger.Warnf("Scheduler: Job '%s' was not launched: %v", e.JobName, err)
	case je == nil && err != nil:
		logger.Errorf("Scheduler: failed to launch Job '%s': %v", e.JobName, err)
	case err != nil:
		logger.Errorf("Scheduler: Job '%s' (Execution ID: %s) ended as %s: %v", e.JobName, je.ID, je.Status, err)
	default:
		logger.Infof("Scheduler: Job '%s' (Execution ID: %s) ended as %s.", e.JobName, je.ID, je.Status)
	}
}

// cronLogger routes the cron library's logging through the batch logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.L().Debugw("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.L().Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
