package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// StepFactory builds a step from the parameters of the running execution.
type StepFactory func(params model.JobParameters) (port.Step, error)

// StepDefinition is one entry of a LinearJob: either a ready step or a parameter-scoped factory.
type StepDefinition struct {
	name    string
	step    port.Step
	factory StepFactory
}

// Name returns the step name.
func (d StepDefinition) Name() string {
	return d.name
}

// Step wraps a step that does not depend on job parameters.
func Step(s port.Step) StepDefinition {
	return StepDefinition{name: s.StepName(), step: s}
}

// Scoped registers a step that is built once per JobExecution from its parameters.
func Scoped(name string, factory StepFactory) StepDefinition {
	return StepDefinition{name: name, factory: factory}
}

// LinearJob runs its steps one after another. Step N starts only after step N-1 COMPLETED.
type LinearJob struct {
	name           string
	steps          []StepDefinition
	jobRepository  repository.JobRepository
	jobListeners   []port.JobExecutionListener
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
	validator      port.JobParametersValidator
	incrementer    port.JobParametersIncrementer
}

var _ port.Job = (*LinearJob)(nil)

// JobOption configures a LinearJob.
type JobOption func(*LinearJob)

// WithJobListeners adds job execution listeners.
func WithJobListeners(listeners ...port.JobExecutionListener) JobOption {
	return func(j *LinearJob) { j.jobListeners = append(j.jobListeners, listeners...) }
}

// WithMetrics sets the metric recorder and tracer.
func WithMetrics(recorder metrics.MetricRecorder, tracer metrics.Tracer) JobOption {
	return func(j *LinearJob) {
		if recorder != nil {
			j.metricRecorder = recorder
		}
		if tracer != nil {
			j.tracer = tracer
		}
	}
}

// WithValidator sets the parameters validator consulted before an execution is created.
func WithValidator(v port.JobParametersValidator) JobOption {
	return func(j *LinearJob) { j.validator = v }
}

// WithIncrementer sets the incrementer used by JobOperator.StartNextInstance.
func WithIncrementer(inc port.JobParametersIncrementer) JobOption {
	return func(j *LinearJob) { j.incrementer = inc }
}

// NewLinearJob creates a job that runs steps in the given order. Step names must be unique.
func NewLinearJob(name string, jobRepository repository.JobRepository, steps []StepDefinition, opts ...JobOption) (*LinearJob, error) {
	if name == "" {
		return nil, errors.New("job name must not be empty")
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("job '%s' has no steps", name)
	}
	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if s.name == "" {
			return nil, fmt.Errorf("job '%s': step name must not be empty", name)
		}
		if seen[s.name] {
			return nil, fmt.Errorf("job '%s': duplicate step name '%s'", name, s.name)
		}
		seen[s.name] = true
	}
	j := &LinearJob{
		name:           name,
		steps:          steps,
		jobRepository:  jobRepository,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// JobName returns the job name.
func (j *LinearJob) JobName() string {
	return j.name
}

// Validate implements port.JobParametersValidator. Without a validator every parameter set is valid.
func (j *LinearJob) Validate(params model.JobParameters) error {
	if j.validator == nil {
		return nil
	}
	return j.validator.Validate(params)
}

// Incrementer returns the job's incrementer, or nil.
func (j *LinearJob) Incrementer() port.JobParametersIncrementer {
	return j.incrementer
}

// Run executes the steps for jobExecution and records the outcome on it.
// A stop request (context cancellation) ends the job as STOPPED and is not reported as an error.
func (j *LinearJob) Run(ctx context.Context, jobExecution *model.JobExecution, jobParameters model.JobParameters) (err error) {
	logger.Infof("Starting Job '%s' (Execution ID: %s).", j.name, jobExecution.ID)

	ctx, finishSpan := j.tracer.StartJobSpan(ctx, jobExecution)
	defer finishSpan()
	j.metricRecorder.RecordJobStart(ctx, jobExecution)
	for _, l := range j.jobListeners {
		l.BeforeJob(ctx, jobExecution)
	}

	defer func() {
		if err != nil {
			jobExecution.MarkAsFailed(err)
			j.tracer.RecordError(ctx, j.name, err)
		}
		if jobExecution.EndTime == nil {
			now := time.Now()
			jobExecution.EndTime = &now
		}
		for _, l := range j.jobListeners {
			l.AfterJob(ctx, jobExecution)
		}
		j.metricRecorder.RecordJobEnd(ctx, jobExecution)
		logger.Infof("Job '%s' (Execution ID: %s) finished. Final Status: %s, Exit Status: %s",
			j.name, jobExecution.ID, jobExecution.Status, jobExecution.ExitStatus)
		for _, se := range jobExecution.StepExecutions {
			logger.Debugf("  %s", se.DebugString())
		}
	}()

	steps, err := j.materialize(jobParameters)
	if err != nil {
		return err
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			logger.Warnf("Job '%s': stop requested before step '%s'.", j.name, step.StepName())
			jobExecution.MarkAsStopped()
			return nil
		}

		stepExecution, skip, err := j.prepareStep(ctx, jobExecution, step.StepName())
		if err != nil {
			return err
		}
		if skip {
			continue
		}

		if err := step.Execute(ctx, jobExecution, stepExecution); err != nil {
			logger.Errorf("Job '%s': step '%s' failed: %v", j.name, step.StepName(), err)
			return err
		}
		switch stepExecution.Status {
		case model.BatchStatusCompleted:
			logger.Infof("Job '%s': step '%s' completed. ExitStatus: %s", j.name, step.StepName(), stepExecution.ExitStatus)
		case model.BatchStatusStopped:
			logger.Warnf("Job '%s': step '%s' stopped.", j.name, step.StepName())
			jobExecution.MarkAsStopped()
			return nil
		default:
			return exception.NewBatchErrorf(j.name, "step '%s' ended in status %s", step.StepName(), stepExecution.Status)
		}
	}

	jobExecution.MarkAsCompleted()
	return nil
}

// materialize builds every step of this execution before the first one runs.
func (j *LinearJob) materialize(params model.JobParameters) ([]port.Step, error) {
	steps := make([]port.Step, 0, len(j.steps))
	for _, def := range j.steps {
		if def.step != nil {
			steps = append(steps, def.step)
			continue
		}
		s, err := def.factory(params)
		if err != nil {
			return nil, exception.NewBatchError(j.name, fmt.Sprintf("failed to build step '%s'", def.name), err, false, false)
		}
		if s == nil {
			return nil, exception.NewBatchErrorf(j.name, "factory of step '%s' returned no step", def.name)
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// prepareStep creates and saves the StepExecution of stepName, carrying over the context of an unfinished
// earlier execution. skip is true when an earlier execution of this instance already completed the step.
func (j *LinearJob) prepareStep(ctx context.Context, jobExecution *model.JobExecution, stepName string) (*model.StepExecution, bool, error) {
	last, err := j.jobRepository.FindLastStepExecution(ctx, jobExecution.JobInstanceID, stepName)
	switch {
	case errors.Is(err, repository.ErrStepExecutionNotFound):
		last = nil
	case err != nil:
		return nil, false, exception.NewBatchError(j.name, fmt.Sprintf("failed to look up previous execution of step '%s'", stepName), err, false, false)
	}

	if last != nil && last.Status == model.BatchStatusCompleted {
		logger.Infof("Job '%s': step '%s' already completed in execution %s. Skipping.", j.name, stepName, last.JobExecutionID)
		return nil, true, nil
	}

	stepExecution := model.NewStepExecution(model.NewID(), jobExecution, stepName)
	if last != nil {
		logger.Infof("Job '%s': resuming step '%s' from execution %s (Status: %s).", j.name, stepName, last.JobExecutionID, last.Status)
		stepExecution.RestoreFrom(last)
	}
	jobExecution.AddStepExecution(stepExecution)
	if err := j.jobRepository.SaveStepExecution(ctx, stepExecution); err != nil {
		return nil, false, exception.NewBatchError(j.name, fmt.Sprintf("failed to save StepExecution of '%s'", stepName), err, false, false)
	}
	return stepExecution, false, nil
}
