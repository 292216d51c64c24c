package usecase

import (
	"context"
	"fmt"
	"sync"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// SimpleJobLauncher implements JobLauncher for local execution.
// It keeps the cancel functions of the executions it runs so that they can be stopped.
type SimpleJobLauncher struct {
	jobRepository repository.JobRepository
	registry      *JobRegistry
	jobRunner     port.JobRunner

	mu sync.Mutex
	// activeJobCancellations holds the cancel functions for running jobs, by execution ID.
	activeJobCancellations map[string]context.CancelFunc
	wg                     sync.WaitGroup
}

var _ JobLauncher = (*SimpleJobLauncher)(nil)

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
func NewSimpleJobLauncher(repo repository.JobRepository, registry *JobRegistry, runner port.JobRunner) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobRepository:          repo,
		registry:               registry,
		jobRunner:              runner,
		activeJobCancellations: make(map[string]context.CancelFunc),
	}
}

// Run implements JobLauncher.
func (l *SimpleJobLauncher) Run(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	job, jobExecution, err := l.create(ctx, jobName, params)
	if err != nil {
		return nil, err
	}
	jobCtx, cancel := context.WithCancel(ctx)
	l.register(jobExecution.ID, cancel)
	defer l.unregister(jobExecution.ID)

	err = l.jobRunner.Run(jobCtx, job, jobExecution)
	return jobExecution, err
}

// Start implements JobLauncher. The job keeps running when ctx is cancelled; use Stop to end it.
func (l *SimpleJobLauncher) Start(ctx context.Context, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	job, jobExecution, err := l.create(ctx, jobName, params)
	if err != nil {
		return nil, err
	}
	snapshot := *jobExecution
	snapshot.StepExecutions = []*model.StepExecution{}
	snapshot.ExecutionContext = jobExecution.ExecutionContext.Copy()

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.register(jobExecution.ID, cancel)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer l.unregister(jobExecution.ID)
		if err := l.jobRunner.Run(jobCtx, job, jobExecution); err != nil {
			logger.Errorf("Job '%s' (Execution ID: %s) failed: %v", jobName, jobExecution.ID, err)
		}
	}()
	return &snapshot, nil
}

func (l *SimpleJobLauncher) create(ctx context.Context, jobName string, params model.JobParameters) (port.Job, *model.JobExecution, error) {
	logger.Infof("Launching Job '%s'. Parameters: %s", jobName, params.String())

	job, err := l.registry.GetJob(jobName)
	if err != nil {
		return nil, nil, err
	}
	if v, ok := job.(port.JobParametersValidator); ok {
		if err := v.Validate(params); err != nil {
			logger.Errorf("Job '%s': JobParameters validation failed: %v", jobName, err)
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidJobParameters, err)
		}
	}

	jobExecution, err := l.jobRepository.CreateJobExecution(ctx, jobName, params)
	if err != nil {
		logger.Warnf("Job '%s' was not launched: %v", jobName, err)
		return nil, nil, err
	}
	logger.Infof("Created JobExecution (ID: %s) of JobInstance (ID: %s).", jobExecution.ID, jobExecution.JobInstanceID)
	return job, jobExecution, nil
}

func (l *SimpleJobLauncher) register(executionID string, cancel context.CancelFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.activeJobCancellations[executionID] = cancel
}

func (l *SimpleJobLauncher) unregister(executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cancel, ok := l.activeJobCancellations[executionID]; ok {
		cancel()
		delete(l.activeJobCancellations, executionID)
	}
}

// Stop cancels a locally running execution. It reports whether the execution was running here.
func (l *SimpleJobLauncher) Stop(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	cancel, ok := l.activeJobCancellations[executionID]
	if ok {
		logger.Infof("Stop requested for JobExecution (ID: %s).", executionID)
		cancel()
	}
	return ok
}

// IsRunning reports whether executionID is running in this launcher.
func (l *SimpleJobLauncher) IsRunning(executionID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.activeJobCancellations[executionID]
	return ok
}

// Wait blocks until every execution started with Start has finished.
func (l *SimpleJobLauncher) Wait() {
	l.wg.Wait()
}

// Shutdown stops all running executions and waits for them until ctx is done.
func (l *SimpleJobLauncher) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	for id, cancel := range l.activeJobCancellations {
		logger.Infof("Shutdown: stopping JobExecution (ID: %s).", id)
		cancel()
	}
	l.mu.Unlock()

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
