package model

import (
	"time"

	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/serialization"
)

// StepReport is the plain-data view of a StepExecution.
type StepReport struct {
	Name          string     `json:"name"`
	Status        JobStatus  `json:"status"`
	ExitStatus    ExitStatus `json:"exitStatus"`
	ReadCount     int        `json:"readCount"`
	WriteCount    int        `json:"writeCount"`
	FilterCount   int        `json:"filterCount"`
	SkipCount     int        `json:"skipCount"`
	CommitCount   int        `json:"commitCount"`
	RollbackCount int        `json:"rollbackCount"`
	RetryCount    int        `json:"retryCount"`
	Failures      []string   `json:"failures,omitempty"`
}

// ExecutionReport is the plain-data result handed to callers of the engine.
type ExecutionReport struct {
	ExecutionID string                 `json:"executionId"`
	InstanceID  string                 `json:"instanceId"`
	JobName     string                 `json:"jobName"`
	Parameters  map[string]interface{} `json:"parameters"`
	Status      JobStatus              `json:"status"`
	ExitStatus  ExitStatus             `json:"exitStatus"`
	Outcome     string                 `json:"outcome"`
	StartTime   *time.Time             `json:"startTime,omitempty"`
	EndTime     *time.Time             `json:"endTime,omitempty"`
	Failures    []string               `json:"failures,omitempty"`
	Steps       []StepReport           `json:"steps"`
}

// NewExecutionReport copies the reportable state of je. Masked parameters are hidden.
func NewExecutionReport(je *JobExecution) ExecutionReport {
	params := make(map[string]interface{}, je.Parameters.Len())
	for _, k := range je.Parameters.Keys() {
		text, _ := je.Parameters.GetText(k)
		params[k] = text
	}
	r := ExecutionReport{
		ExecutionID: je.ID,
		InstanceID:  je.JobInstanceID,
		JobName:     je.JobName,
		Parameters:  serialization.MaskParameters(params),
		Status:      je.Status,
		ExitStatus:  je.ExitStatus,
		StartTime:   je.StartTime,
		EndTime:     je.EndTime,
		Failures:    append([]string(nil), je.Failures...),
		Steps:       make([]StepReport, 0, len(je.StepExecutions)),
	}
	for _, se := range je.StepExecutions {
		r.Steps = append(r.Steps, StepReport{
			Name:          se.StepName,
			Status:        se.Status,
			ExitStatus:    se.ExitStatus,
			ReadCount:     se.ReadCount,
			WriteCount:    se.WriteCount,
			FilterCount:   se.FilterCount,
			SkipCount:     se.SkipCount(),
			CommitCount:   se.CommitCount,
			RollbackCount: se.RollbackCount,
			RetryCount:    se.RetryCount,
			Failures:      append([]string(nil), se.Failures...),
		})
	}
	r.Outcome = r.classify()
	return r
}

// TotalWriteCount sums the write counts of all steps.
func (r ExecutionReport) TotalWriteCount() int {
	n := 0
	for _, s := range r.Steps {
		n += s.WriteCount
	}
	return n
}

// TotalSkipCount sums the skip counts of all steps.
func (r ExecutionReport) TotalSkipCount() int {
	n := 0
	for _, s := range r.Steps {
		n += s.SkipCount
	}
	return n
}

// classify labels the run "CLEAN", "COMPLETED_WITH_SKIPS", "ABORTED" or "RUNNING".
func (r ExecutionReport) classify() string {
	switch {
	case r.Status == BatchStatusCompleted && r.TotalSkipCount() == 0:
		return "CLEAN"
	case r.Status == BatchStatusCompleted:
		return "COMPLETED_WITH_SKIPS"
	case r.Status.IsFinished():
		return "ABORTED"
	default:
		return "RUNNING"
	}
}
