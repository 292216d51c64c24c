package model

import (
	"fmt"
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// StepExecution is one step's contribution to a JobExecution.
// It is owned by exactly one JobExecution.
type StepExecution struct {
	ID             string
	JobExecutionID string
	// JobExecution is the owning execution; it is not persisted with the step.
	JobExecution     *JobExecution
	StepName         string
	Status           JobStatus
	ExitStatus       ExitStatus
	ReadCount        int
	WriteCount       int
	FilterCount      int
	ReadSkipCount    int
	ProcessSkipCount int
	CommitCount      int
	RollbackCount    int
	RetryCount       int
	StartTime        time.Time
	EndTime          *time.Time
	LastUpdated      time.Time
	Failures         FailureList
	ExecutionContext ExecutionContext
	Version          int
}

// NewStepExecution creates a READY (STARTING) execution of stepName within jobExecution.
func NewStepExecution(id string, jobExecution *JobExecution, stepName string) *StepExecution {
	now := time.Now()
	se := &StepExecution{
		ID:               id,
		StepName:         stepName,
		Status:           BatchStatusStarting,
		ExitStatus:       ExitStatusUnknown,
		StartTime:        now,
		LastUpdated:      now,
		Failures:         FailureList{},
		ExecutionContext: NewExecutionContext(),
	}
	if jobExecution != nil {
		se.JobExecution = jobExecution
		se.JobExecutionID = jobExecution.ID
	}
	return se
}

// SkipCount is the total of items skipped while reading and while processing.
func (se *StepExecution) SkipCount() int {
	return se.ReadSkipCount + se.ProcessSkipCount
}

// StepContribution holds the counter increments of one chunk. They are applied to the step only when
// the chunk commits.
type StepContribution struct {
	ReadCount        int
	WriteCount       int
	FilterCount      int
	ReadSkipCount    int
	ProcessSkipCount int
	RetryCount       int
}

// SkipCount is the number of items skipped in this chunk.
func (c StepContribution) SkipCount() int {
	return c.ReadSkipCount + c.ProcessSkipCount
}

// IsEmpty reports whether the chunk saw no item at all.
func (c StepContribution) IsEmpty() bool {
	return c.ReadCount == 0 && c.SkipCount() == 0
}

// Apply adds a committed chunk's contribution to the counters.
func (se *StepExecution) Apply(c StepContribution) {
	se.ReadCount += c.ReadCount
	se.WriteCount += c.WriteCount
	se.FilterCount += c.FilterCount
	se.ReadSkipCount += c.ReadSkipCount
	se.ProcessSkipCount += c.ProcessSkipCount
	se.RetryCount += c.RetryCount
	se.CommitCount++
	se.LastUpdated = time.Now()
}

// RestoreFrom carries the execution context of a previous, unfinished execution of the same step into
// this one so that readers and writers can resume.
func (se *StepExecution) RestoreFrom(previous *StepExecution) {
	if previous == nil {
		return
	}
	se.ExecutionContext = previous.ExecutionContext.Copy()
}

// TransitionTo changes the status if the transition is allowed.
func (se *StepExecution) TransitionTo(newStatus JobStatus) error {
	if !isValidStepTransition(se.Status, newStatus) {
		return fmt.Errorf("StepExecution (ID: %s): invalid state transition: %s -> %s", se.ID, se.Status, newStatus)
	}
	se.Status = newStatus
	se.LastUpdated = time.Now()
	return nil
}

func (se *StepExecution) forceStatus(status JobStatus) {
	if err := se.TransitionTo(status); err != nil {
		logger.Warnf("Could not update StepExecution (ID: %s) status to %s: %v", se.ID, status, err)
		se.Status = status
		se.LastUpdated = time.Now()
	}
}

func (se *StepExecution) finish(status JobStatus) {
	se.forceStatus(status)
	se.ExitStatus = status.ToExitStatus()
	now := time.Now()
	se.EndTime = &now
	se.LastUpdated = now
}

// MarkAsStarted moves the step to RUNNING (STARTED).
func (se *StepExecution) MarkAsStarted() {
	se.forceStatus(BatchStatusStarted)
	se.ExitStatus = ExitStatusExecuting
	se.StartTime = time.Now()
}

// MarkAsCompleted updates the status to COMPLETED.
func (se *StepExecution) MarkAsCompleted() {
	se.finish(BatchStatusCompleted)
}

// MarkAsFailed updates the status to FAILED and records err.
func (se *StepExecution) MarkAsFailed(err error) {
	se.finish(BatchStatusFailed)
	se.AddFailureException(err)
}

// MarkAsStopped updates the status to STOPPED.
func (se *StepExecution) MarkAsStopped() {
	se.finish(BatchStatusStopped)
}

// AddFailureException appends err's message unless it is already recorded.
func (se *StepExecution) AddFailureException(err error) {
	if err == nil {
		return
	}
	msg := err.Error()
	for _, existing := range se.Failures {
		if existing == msg {
			return
		}
	}
	se.Failures = append(se.Failures, msg)
	se.LastUpdated = time.Now()
}

// DebugString summarizes the counters for logs.
func (se *StepExecution) DebugString() string {
	return fmt.Sprintf("StepExecution{ID: %s, StepName: %s, Status: %s, Read: %d, Write: %d, Filter: %d, Skip: %d (read %d, process %d), Commit: %d, Rollback: %d, Retry: %d}",
		se.ID, se.StepName, se.Status, se.ReadCount, se.WriteCount, se.FilterCount, se.SkipCount(),
		se.ReadSkipCount, se.ProcessSkipCount, se.CommitCount, se.RollbackCount, se.RetryCount)
}
