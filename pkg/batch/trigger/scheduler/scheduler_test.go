package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	config "github.com/tigerroll/chunkbatch/pkg/batch/core/config"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/chunkbatch/pkg/batch/trigger/scheduler"
)

// blockingJob runs until it is stopped and reports each start.
type blockingJob struct {
	started chan string
}

func (j *blockingJob) JobName() string { return "blockingJob" }

func (j *blockingJob) Run(ctx context.Context, je *model.JobExecution, _ model.JobParameters) error {
	j.started <- je.ID
	<-ctx.Done()
	je.MarkAsStopped()
	return nil
}

type countingJob struct {
	runs atomic.Int32
}

func (j *countingJob) JobName() string { return "countingJob" }

func (j *countingJob) Run(context.Context, *model.JobExecution, model.JobParameters) error {
	j.runs.Add(1)
	return nil
}

type fixture struct {
	launcher *usecase.SimpleJobLauncher
	explorer *usecase.SimpleJobExplorer
	blocking *blockingJob
	counting *countingJob
	clock    atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := inmemory.NewInMemoryJobRepository()
	f := &fixture{
		explorer: usecase.NewSimpleJobExplorer(repo),
		blocking: &blockingJob{started: make(chan string, 4)},
		counting: &countingJob{},
	}
	registry := usecase.NewJobRegistry(f.blocking, f.counting)
	f.launcher = usecase.NewSimpleJobLauncher(repo, registry, runner.NewSimpleJobRunner(repo))
	f.clock.Store(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).UnixMilli())
	t.Cleanup(func() { _ = f.launcher.Shutdown(context.Background()) })
	return f
}

// newScheduler returns a scheduler whose clock advances by one second per firing.
func (f *fixture) newScheduler(policy scheduler.OverlapPolicy) *scheduler.Scheduler {
	return scheduler.NewScheduler(f.launcher, f.explorer, policy, scheduler.WithClock(func() time.Time {
		return time.UnixMilli(f.clock.Add(1000))
	}))
}

func (f *fixture) instances(t *testing.T) int {
	t.Helper()
	instances, err := f.explorer.GetJobInstances(context.Background(), "blockingJob", 0, 100)
	require.NoError(t, err)
	return len(instances)
}

func waitStarted(t *testing.T, started <-chan string) string {
	t.Helper()
	select {
	case id := <-started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
		return ""
	}
}

func assertNotStarted(t *testing.T, started <-chan string) {
	t.Helper()
	select {
	case id := <-started:
		t.Fatalf("unexpected start of execution %s", id)
	case <-time.After(100 * time.Millisecond):
	}
}

func addEntry(t *testing.T, s *scheduler.Scheduler, e scheduler.Entry) func() {
	t.Helper()
	_, err := s.Add(e)
	require.NoError(t, err)
	entries := s.Entries()
	return entries[len(entries)-1].WrappedJob.Run
}

func TestScheduler_SkipIfRunningDropsOverlappingFirings(t *testing.T) {
	f := newFixture(t)
	s := f.newScheduler("")
	fire := addEntry(t, s, scheduler.Entry{JobName: "blockingJob", Spec: "@every 1h"})

	go fire()
	first := waitStarted(t, f.blocking.started)

	// Still running in this scheduler: skipped by the cron wrapper.
	fire()
	assertNotStarted(t, f.blocking.started)
	assert.Equal(t, 1, f.instances(t))

	require.True(t, f.launcher.Stop(first))
	f.launcher.Wait()

	// Running outside the scheduler: skipped after asking the repository.
	je, err := f.launcher.Start(context.Background(), "blockingJob", model.NewJobParametersBuilder().AddString("manual", "yes").ToJobParameters())
	require.NoError(t, err)
	waitStarted(t, f.blocking.started)
	fire()
	assertNotStarted(t, f.blocking.started)
	assert.Equal(t, 2, f.instances(t))
	f.launcher.Stop(je.ID)
	f.launcher.Wait()

	// Idle again: the next firing launches a new instance.
	go fire()
	third := waitStarted(t, f.blocking.started)
	assert.Equal(t, 3, f.instances(t))
	f.launcher.Stop(third)
}

func TestScheduler_QueueDelaysUntilPreviousFinished(t *testing.T) {
	f := newFixture(t)
	s := f.newScheduler(scheduler.Queue)
	fire := addEntry(t, s, scheduler.Entry{JobName: "blockingJob", Spec: "@every 1h"})

	go fire()
	first := waitStarted(t, f.blocking.started)
	go fire()
	assertNotStarted(t, f.blocking.started)

	require.True(t, f.launcher.Stop(first))
	second := waitStarted(t, f.blocking.started)
	assert.NotEqual(t, first, second)
	f.launcher.Stop(second)
}

func TestScheduler_RunConcurrentlyOverridesDefault(t *testing.T) {
	f := newFixture(t)
	s := f.newScheduler(scheduler.SkipIfRunning)
	fire := addEntry(t, s, scheduler.Entry{JobName: "blockingJob", Spec: "@every 1h", Overlap: scheduler.RunConcurrently})

	go fire()
	go fire()
	a := waitStarted(t, f.blocking.started)
	b := waitStarted(t, f.blocking.started)
	assert.NotEqual(t, a, b)
	f.launcher.Stop(a)
	f.launcher.Stop(b)
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	f := newFixture(t)
	s := f.newScheduler("")
	_, err := s.Add(scheduler.Entry{JobName: "countingJob", Spec: "@every 1s"})
	require.NoError(t, err)

	s.Start()
	assert.Eventually(t, func() bool { return f.counting.runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	require.NoError(t, s.Stop(context.Background()))
}

func TestScheduler_RejectsInvalidEntries(t *testing.T) {
	f := newFixture(t)
	s := f.newScheduler("")

	_, err := s.Add(scheduler.Entry{JobName: "countingJob", Spec: "not a spec"})
	assert.ErrorContains(t, err, "invalid spec")
	_, err = s.Add(scheduler.Entry{Spec: "@every 1s"})
	assert.Error(t, err)
	_, err = s.Add(scheduler.Entry{JobName: "countingJob", Spec: "@every 1s", Overlap: "sometimes"})
	assert.ErrorContains(t, err, "unknown overlap policy")
	assert.Empty(t, s.Entries())

	_, err = scheduler.ParseOverlapPolicy("sometimes")
	assert.Error(t, err)
	p, err := scheduler.ParseOverlapPolicy("")
	require.NoError(t, err)
	assert.Equal(t, scheduler.SkipIfRunning, p)
}

func TestTimestampParameters(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	params, err := scheduler.TimestampParameters("minAmount(LONG)=7000", "processingMode=FAST")(now)
	require.NoError(t, err)
	minAmount, _ := params.GetLong("minAmount")
	assert.Equal(t, int64(7000), minAmount)
	mode, _ := params.GetString("processingMode")
	assert.Equal(t, "FAST", mode)
	ts, _ := params.GetLong("timestamp")
	assert.Equal(t, now.UnixMilli(), ts)

	_, err = scheduler.TimestampParameters("broken(LONG)=x")(now)
	assert.Error(t, err)
}

func TestNewSchedulerFromConfig(t *testing.T) {
	f := newFixture(t)
	cfg := config.NewConfig()
	cfg.Scheduler.Entries = []config.ScheduleEntryConfig{
		{JobName: "countingJob", Spec: "0 */5 * * * *", Parameters: []string{"source=cron"}},
	}
	params := scheduler.Params{
		Cfg:      cfg,
		Launcher: f.launcher,
		Explorer: f.explorer,
		Entries:  []scheduler.Entry{{JobName: "blockingJob", Spec: "@every 30s"}},
	}
	s, err := scheduler.NewSchedulerFromConfig(params)
	require.NoError(t, err)
	assert.Len(t, s.Entries(), 2)

	cfg.System.Timezone = "Nowhere/Invalid"
	_, err = scheduler.NewSchedulerFromConfig(params)
	assert.Error(t, err)

	cfg.System.Timezone = "UTC"
	cfg.Scheduler.OverlapPolicy = "sometimes"
	_, err = scheduler.NewSchedulerFromConfig(params)
	assert.Error(t, err)
}
