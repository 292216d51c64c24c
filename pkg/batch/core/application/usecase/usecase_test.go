package usecase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/job/runner"
	"github.com/tigerroll/chunkbatch/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/chunkbatch/pkg/batch/infrastructure/repository/inmemory"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
)

type testJob struct {
	name      string
	run       func(ctx context.Context, je *model.JobExecution) error
	validator port.JobParametersValidator
	inc       port.JobParametersIncrementer
}

func (j *testJob) JobName() string { return j.name }

func (j *testJob) Run(ctx context.Context, je *model.JobExecution, _ model.JobParameters) error {
	if j.run == nil {
		return nil
	}
	return j.run(ctx, je)
}

func (j *testJob) Incrementer() port.JobParametersIncrementer { return j.inc }

type validatedJob struct {
	*testJob
}

func (j validatedJob) Validate(params model.JobParameters) error { return j.validator.Validate(params) }

// blockUntilStopped returns a run func that signals started and waits for a stop request.
func blockUntilStopped(started chan<- string) func(ctx context.Context, je *model.JobExecution) error {
	return func(ctx context.Context, je *model.JobExecution) error {
		started <- je.ID
		<-ctx.Done()
		je.MarkAsStopped()
		return nil
	}
}

type fixture struct {
	repo     *inmemory.InMemoryJobRepository
	launcher *usecase.SimpleJobLauncher
	operator *usecase.DefaultJobOperator
	explorer *usecase.SimpleJobExplorer
}

func newFixture(jobs ...port.Job) *fixture {
	repo := inmemory.NewInMemoryJobRepository()
	registry := usecase.NewJobRegistry(jobs...)
	launcher := usecase.NewSimpleJobLauncher(repo, registry, runner.NewSimpleJobRunner(repo))
	return &fixture{
		repo:     repo,
		launcher: launcher,
		operator: usecase.NewDefaultJobOperator(repo, registry, launcher),
		explorer: usecase.NewSimpleJobExplorer(repo),
	}
}

func ts(n int64) model.JobParameters {
	return model.NewJobParametersBuilder().AddLong("timestamp", n).ToJobParameters()
}

func TestJobLauncher_RunRejectsDuplicateCompletedRun(t *testing.T) {
	ctx := context.Background()
	runs := 0
	f := newFixture(&testJob{name: "job", run: func(context.Context, *model.JobExecution) error {
		runs++
		return nil
	}})

	je, err := f.launcher.Run(ctx, "job", ts(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusCompleted, je.Status)
	assert.Equal(t, 1, runs)

	again, err := f.launcher.Run(ctx, "job", ts(1))
	assert.ErrorIs(t, err, exception.ErrDuplicateRun)
	assert.Nil(t, again)
	assert.Equal(t, 1, runs, "a rejected launch never reaches the job")

	other, err := f.launcher.Run(ctx, "job", ts(2))
	require.NoError(t, err)
	assert.NotEqual(t, je.JobInstanceID, other.JobInstanceID)
	assert.Equal(t, 2, runs)
}

func TestJobLauncher_UnknownJobAndInvalidParameters(t *testing.T) {
	ctx := context.Background()
	job := validatedJob{&testJob{
		name:      "validated",
		validator: runner.NewParametersValidator(map[string]model.ParameterType{"minAmount": model.ParameterTypeLong}, nil),
	}}
	f := newFixture(job)

	_, err := f.launcher.Run(ctx, "missing", ts(1))
	assert.ErrorIs(t, err, usecase.ErrNoSuchJob)

	_, err = f.launcher.Run(ctx, "validated", ts(1))
	assert.ErrorIs(t, err, usecase.ErrInvalidJobParameters)
	assert.ErrorContains(t, err, "minAmount")

	names, err := f.explorer.GetJobNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "rejected launches create no instance")
}

func TestJobOperator_StartStopAndRestart(t *testing.T) {
	ctx := context.Background()
	started := make(chan string, 2)
	stopOnce := true
	job := &testJob{name: "job"}
	job.run = func(ctx context.Context, je *model.JobExecution) error {
		if stopOnce {
			stopOnce = false
			return blockUntilStopped(started)(ctx, je)
		}
		return nil
	}
	f := newFixture(job)

	snapshot, err := f.operator.Start(ctx, "job", ts(1))
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStarting, snapshot.Status)

	var id string
	select {
	case id = <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not start")
	}
	assert.Equal(t, snapshot.ID, id)
	assert.True(t, f.launcher.IsRunning(id))

	_, err = f.launcher.Start(ctx, "job", ts(1))
	assert.ErrorIs(t, err, exception.ErrConcurrentRun)

	require.NoError(t, f.operator.Stop(ctx, id))
	f.launcher.Wait()

	stopped, err := f.explorer.GetJobExecution(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusStopped, stopped.Status)
	assert.ErrorIs(t, f.operator.Stop(ctx, id), usecase.ErrIllegalExecutionState)

	restarted, err := f.operator.Restart(ctx, id)
	require.NoError(t, err)
	f.launcher.Wait()
	assert.Equal(t, stopped.JobInstanceID, restarted.JobInstanceID)

	last, err := f.explorer.GetLastJobExecution(ctx, stopped.JobInstanceID)
	require.NoError(t, err)
	assert.Equal(t, restarted.ID, last.ID)
	assert.Equal(t, model.BatchStatusCompleted, last.Status)

	executions, err := f.explorer.GetJobExecutions(ctx, stopped.JobInstanceID)
	require.NoError(t, err)
	assert.Len(t, executions, 2)

	_, err = f.operator.Restart(ctx, last.ID)
	assert.ErrorIs(t, err, usecase.ErrIllegalExecutionState)
}

func TestJobOperator_Abandon(t *testing.T) {
	ctx := context.Background()
	started := make(chan string, 1)
	f := newFixture(
		&testJob{name: "failing", run: func(context.Context, *model.JobExecution) error { return errors.New("boom") }},
		&testJob{name: "blocking", run: blockUntilStopped(started)},
	)

	failed, err := f.launcher.Run(ctx, "failing", ts(1))
	require.Error(t, err)
	require.Equal(t, model.BatchStatusFailed, failed.Status)

	require.NoError(t, f.operator.Abandon(ctx, failed.ID))
	abandoned, err := f.explorer.GetJobExecution(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchStatusAbandoned, abandoned.Status)
	assert.ErrorIs(t, f.operator.Abandon(ctx, failed.ID), usecase.ErrIllegalExecutionState)

	_, err = f.operator.Restart(ctx, failed.ID)
	assert.ErrorIs(t, err, usecase.ErrIllegalExecutionState, "abandoned executions are not restarted")

	running, err := f.operator.Start(ctx, "blocking", ts(1))
	require.NoError(t, err)
	<-started
	assert.ErrorIs(t, f.operator.Abandon(ctx, running.ID), usecase.ErrIllegalExecutionState)

	runningNow, err := f.explorer.FindRunningJobExecutions(ctx, "blocking")
	require.NoError(t, err)
	assert.Len(t, runningNow, 1)

	require.NoError(t, f.launcher.Shutdown(ctx))
	runningNow, err = f.explorer.FindRunningJobExecutions(ctx, "blocking")
	require.NoError(t, err)
	assert.Empty(t, runningNow)
}

func TestJobOperator_StartNextInstance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(
		&testJob{name: "job", inc: incrementer.NewRunIDIncrementer("")},
		&testJob{name: "plain"},
	)

	for want := int64(1); want <= 3; want++ {
		je, err := f.operator.StartNextInstance(ctx, "job")
		require.NoError(t, err)
		f.launcher.Wait()
		runID, ok := je.Parameters.GetLong(incrementer.DefaultRunIDKey)
		require.True(t, ok)
		assert.Equal(t, want, runID)
	}

	instances, err := f.explorer.GetJobInstances(ctx, "job", 0, 10)
	require.NoError(t, err)
	assert.Len(t, instances, 3)
	newest, err := f.explorer.GetJobInstance(ctx, instances[0].ID)
	require.NoError(t, err)
	runID, _ := newest.Parameters.GetLong(incrementer.DefaultRunIDKey)
	assert.Equal(t, int64(3), runID)

	_, err = f.operator.StartNextInstance(ctx, "plain")
	assert.ErrorIs(t, err, usecase.ErrNoIncrementer)
}

func TestJobRegistry(t *testing.T) {
	registry := usecase.NewJobRegistry(&testJob{name: "b"}, &testJob{name: "a"})
	assert.Equal(t, []string{"a", "b"}, registry.JobNames())
	assert.Error(t, registry.Register(&testJob{name: "a"}))
	assert.Panics(t, func() { usecase.NewJobRegistry(&testJob{name: "a"}, &testJob{name: "a"}) })
}
