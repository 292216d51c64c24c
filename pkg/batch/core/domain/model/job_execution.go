package model

import (
	"fmt"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// JobExecution is one attempt to run a JobInstance.
type JobExecution struct {
	ID               string
	JobInstanceID    string
	JobName          string
	Parameters       JobParameters
	Status           JobStatus
	ExitStatus       ExitStatus
	CreateTime       time.Time
	StartTime        *time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	Failures         FailureList
	StepExecutions   []*StepExecution
	ExecutionContext ExecutionContext
	Version          int
}

// NewJobExecution creates a STARTING execution of an instance.
func NewJobExecution(jobInstanceID string, jobName string, params JobParameters) *JobExecution {
	now := time.Now()
	return &JobExecution{
		ID:               NewID(),
		JobInstanceID:    jobInstanceID,
		JobName:          jobName,
		Parameters:       params,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		CreateTime:       now,
		LastUpdated:      now,
		Failures:         FailureList{},
		StepExecutions:   []*StepExecution{},
		ExecutionContext: NewExecutionContext(),
	}
}

// TransitionTo changes the status if the transition is allowed.
func (je *JobExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidJobTransition(je.Status, newStatus) {
		return fmt.Errorf("JobExecution (ID: %s): invalid state transition: %s -> %s", je.ID, je.Status, newStatus)
	}
	je.Status = newStatus
	je.LastUpdated = time.Now()
	return nil
}

func (je *JobExecution) forceStatus(status JobStatus) {
	if err := je.TransitionTo(status); err != nil {
		logger.Warnf("Could not update JobExecution (ID: %s) status to %s: %v", je.ID, status, err)
		je.Status = status
		je.LastUpdated = time.Now()
	}
}

func (je *JobExecution) finish(status JobStatus) {
	je.forceStatus(status)
	je.ExitStatus = status.ToExitStatus()
	now := time.Now()
	je.EndTime = &now
	je.LastUpdated = now
}

// MarkAsStarted updates the status to STARTED and records the start time.
func (je *JobExecution) MarkAsStarted() {
	je.forceStatus(BatchStatusStarted)
	je.ExitStatus = ExitStatusExecuting
	now := time.Now()
	je.StartTime = &now
}

// MarkAsStopping records a stop request.
func (je *JobExecution) MarkAsStopping() {
	je.forceStatus(BatchStatusStopping)
}

// MarkAsCompleted updates the status to COMPLETED.
func (je *JobExecution) MarkAsCompleted() {
	je.finish(BatchStatusCompleted)
}

// MarkAsFailed updates the status to FAILED and records err.
func (je *JobExecution) MarkAsFailed(err error) {
	je.finish(BatchStatusFailed)
	je.AddFailureException(err)
}

// MarkAsStopped updates the status to STOPPED.
func (je *JobExecution) MarkAsStopped() {
	je.finish(BatchStatusStopped)
}

// MarkAsAbandoned updates the status to ABANDONED.
func (je *JobExecution) MarkAsAbandoned() {
	je.finish(BatchStatusAbandoned)
}

// AddFailureException appends err's message unless the same message is already recorded.
func (je *JobExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	for _, existing := range je.Failures {
		if existing == msg {
			return
		}
	}
	je.Failures = append(je.Failures, msg)
	je.LastUpdated = time.Now()
}

// AddStepExecution appends a step execution.
func (je *JobExecution) AddStepExecution(se *StepExecution) {
	je.StepExecutions = append(je.StepExecutions, se)
}

// StepExecution returns the execution of the named step within this job execution.
func (je *JobExecution) StepExecution(stepName string) (*StepExecution, bool) {
	for i := len(je.StepExecutions) - 1; i >= 0; i-- {
		if je.StepExecutions[i].StepName == stepName {
			return je.StepExecutions[i], true
		}
	}
	return nil, false
}

// Duration returns the elapsed time between start and end (or now while running).
func (je *JobExecution) Duration() time.Duration {
	if je.StartTime == nil {
		return 0
	}
	end := time.Now()
	if je.EndTime != nil {
		end = *je.EndTime
	}
	return end.Sub(*je.StartTime)
}
