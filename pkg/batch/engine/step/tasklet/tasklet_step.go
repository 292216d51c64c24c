package tasklet

import (
	"context"
	"database/sql"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// TaskletStep is a port.Step that runs one Tasklet inside one transaction.
type TaskletStep struct {
	name                   string
	tasklet                port.Tasklet
	txManager              tx.TransactionManager
	jobRepository          repository.StepExecution
	stepExecutionListeners []port.StepExecutionListener
	txOptions              *sql.TxOptions

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// Option configures a TaskletStep.
type Option func(*TaskletStep)

// WithIsolationLevel sets the isolation level of the tasklet transaction.
func WithIsolationLevel(level string) Option {
	return func(s *TaskletStep) { s.txOptions = &sql.TxOptions{Isolation: tx.ParseIsolationLevel(level)} }
}

// WithStepListeners registers step execution listeners.
func WithStepListeners(listeners ...port.StepExecutionListener) Option {
	return func(s *TaskletStep) { s.stepExecutionListeners = append(s.stepExecutionListeners, listeners...) }
}

// WithMetrics sets the metric recorder and tracer. Nil values keep the no-op defaults.
func WithMetrics(recorder metrics.MetricRecorder, tracer metrics.Tracer) Option {
	return func(s *TaskletStep) {
		if recorder != nil {
			s.metricRecorder = recorder
		}
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewTaskletStep creates a new TaskletStep instance.
func NewTaskletStep(name string, tasklet port.Tasklet, txManager tx.TransactionManager, jobRepository repository.StepExecution, opts ...Option) *TaskletStep {
	s := &TaskletStep{
		name:           name,
		tasklet:        tasklet,
		txManager:      txManager,
		jobRepository:  jobRepository,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StepName returns the step name.
func (s *TaskletStep) StepName() string {
	return s.name
}

// Execute runs the Tasklet. Its transaction commits only if the tasklet succeeds.
func (s *TaskletStep) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) (err error) {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)
	persistCtx := context.WithoutCancel(ctx)

	logger.Infof("TaskletStep '%s' executing.", s.name)
	stepExecution.MarkAsStarted()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	if err := s.jobRepository.UpdateStepExecution(persistCtx, stepExecution); err != nil {
		return exception.NewBatchError(s.name, "failed to update StepExecution status to STARTED", err, false, false)
	}
	for _, l := range s.stepExecutionListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	exitStatus, err := s.executeInTx(ctx, stepExecution)

	if closeErr := s.tasklet.Close(ctx); closeErr != nil {
		logger.Errorf("TaskletStep '%s': failed to close Tasklet: %v", s.name, closeErr)
		if err == nil {
			err = closeErr
		}
	}

	if err != nil {
		s.tracer.RecordError(ctx, s.name, err)
		stepExecution.MarkAsFailed(err)
	} else {
		stepExecution.MarkAsCompleted()
		if exitStatus != "" {
			stepExecution.ExitStatus = exitStatus
		}
	}

	for _, l := range s.stepExecutionListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	if updateErr := s.jobRepository.UpdateStepExecution(persistCtx, stepExecution); updateErr != nil {
		logger.Errorf("TaskletStep '%s': failed to update final StepExecution state: %v", s.name, updateErr)
		if err == nil {
			err = updateErr
		}
	}

	logger.Infof("TaskletStep '%s' finished. ExitStatus: %s", s.name, stepExecution.ExitStatus)
	return err
}

func (s *TaskletStep) executeInTx(ctx context.Context, stepExecution *model.StepExecution) (model.ExitStatus, error) {
	t, err := s.txManager.Begin(ctx, s.txOptions)
	if err != nil {
		return "", exception.NewResourceError(s.name, "failed to begin tasklet transaction", err)
	}

	exitStatus, err := s.tasklet.Execute(tx.WithTx(ctx, t), stepExecution)
	if err != nil {
		if rbErr := s.txManager.Rollback(t); rbErr != nil {
			logger.Warnf("TaskletStep '%s': rollback failed: %v", s.name, rbErr)
		}
		stepExecution.RollbackCount++
		return exitStatus, err
	}
	if err := s.txManager.Commit(t); err != nil {
		stepExecution.RollbackCount++
		return exitStatus, exception.NewChunkError(s.name, "failed to commit tasklet transaction", err)
	}
	stepExecution.CommitCount++
	return exitStatus, nil
}

var _ port.Step = (*TaskletStep)(nil)
