package model_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

func TestJobExecution_Lifecycle(t *testing.T) {
	je := model.NewJobExecution("inst-1", "csvToDbJob", model.NewJobParameters())
	assert.Equal(t, model.BatchStatusStarting, je.Status)
	assert.True(t, je.Status.IsRunning())

	je.MarkAsStarted()
	require.NotNil(t, je.StartTime)
	assert.Equal(t, model.BatchStatusStarted, je.Status)

	je.MarkAsFailed(errors.New("boom"))
	je.AddFailureException(errors.New("boom"))
	assert.Equal(t, model.BatchStatusFailed, je.Status)
	assert.Equal(t, model.ExitStatusFailed, je.ExitStatus)
	assert.Equal(t, model.FailureList{"boom"}, je.Failures)
	assert.NotNil(t, je.EndTime)
	assert.True(t, je.Status.IsRestartable())

	assert.Error(t, je.TransitionTo(model.BatchStatusStarted), "FAILED cannot go back to STARTED")
	assert.NoError(t, je.TransitionTo(model.BatchStatusAbandoned))
}

func TestJobExecution_StoppingMayComplete(t *testing.T) {
	je := model.NewJobExecution("inst-1", "job", model.NewJobParameters())
	je.MarkAsStarted()
	je.MarkAsStopping()
	assert.NoError(t, je.TransitionTo(model.BatchStatusCompleted))
}

func TestStepExecution_ApplyContribution(t *testing.T) {
	je := model.NewJobExecution("inst-1", "job", model.NewJobParameters())
	se := model.NewStepExecution(model.NewID(), je, "step1")
	assert.Equal(t, je.ID, se.JobExecutionID)

	se.Apply(model.StepContribution{ReadCount: 5, WriteCount: 3, FilterCount: 1, ProcessSkipCount: 1, RetryCount: 2})
	se.Apply(model.StepContribution{ReadCount: 2, WriteCount: 1, ReadSkipCount: 1})

	assert.Equal(t, 7, se.ReadCount)
	assert.Equal(t, 4, se.WriteCount)
	assert.Equal(t, 2, se.SkipCount())
	assert.Equal(t, 2, se.CommitCount)
	assert.Equal(t, se.ReadCount, se.WriteCount+se.SkipCount()+se.FilterCount)
	assert.Contains(t, se.DebugString(), "Skip: 2")

	assert.True(t, model.StepContribution{}.IsEmpty())
	assert.False(t, model.StepContribution{ReadSkipCount: 1}.IsEmpty())
}

func TestStepExecution_RestoreFrom(t *testing.T) {
	je := model.NewJobExecution("inst-1", "job", model.NewJobParameters())
	prev := model.NewStepExecution("s1", je, "step1")
	prev.ExecutionContext.Put("reader.read.count", 6)
	prev.ReadCount = 6

	next := model.NewStepExecution("s2", je, "step1")
	next.RestoreFrom(prev)
	prev.ExecutionContext.Put("reader.read.count", 9)

	n, ok := next.ExecutionContext.GetInt("reader.read.count")
	require.True(t, ok)
	assert.Equal(t, 6, n)
	assert.Zero(t, next.ReadCount, "counters belong to one execution")
}

func TestStepExecution_InvalidTransitionIsForced(t *testing.T) {
	se := model.NewStepExecution("s1", nil, "step1")
	se.MarkAsCompleted()
	assert.Equal(t, model.BatchStatusCompleted, se.Status)
	assert.Error(t, se.TransitionTo(model.BatchStatusStarted))
}

func TestExecutionContext_ValueScan(t *testing.T) {
	ec := model.NewExecutionContext()
	ec.Put("count", 3)
	ec.Put("name", "csv")
	ec.Put("done", true)

	v, err := ec.Value()
	require.NoError(t, err)

	var scanned model.ExecutionContext
	require.NoError(t, scanned.Scan(v))
	n, ok := scanned.GetInt("count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	s, _ := scanned.GetString("name")
	assert.Equal(t, "csv", s)
	b, _ := scanned.GetBool("done")
	assert.True(t, b)

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)
}

func TestFailureList_ValueScan(t *testing.T) {
	fl := model.FailureList{"a", "b"}
	v, err := fl.Value()
	require.NoError(t, err)

	var scanned model.FailureList
	require.NoError(t, scanned.Scan([]byte(v.(string))))
	assert.Equal(t, fl, scanned)
}

func TestExecutionReport(t *testing.T) {
	params := model.NewJobParametersBuilder().AddLong("timestamp", 1).ToJobParameters()
	je := model.NewJobExecution("inst-1", "faultTolerantJob", params)
	se := model.NewStepExecution("s1", je, "faultTolerantStep")
	se.Apply(model.StepContribution{ReadCount: 5, WriteCount: 4, ProcessSkipCount: 1})
	se.MarkAsCompleted()
	je.AddStepExecution(se)
	je.MarkAsStarted()
	je.MarkAsCompleted()

	r := model.NewExecutionReport(je)

	assert.Equal(t, model.BatchStatusCompleted, r.Status)
	assert.Equal(t, "COMPLETED_WITH_SKIPS", r.Outcome)
	assert.Equal(t, 4, r.TotalWriteCount())
	assert.Equal(t, 1, r.TotalSkipCount())
	require.Len(t, r.Steps, 1)
	assert.Equal(t, "faultTolerantStep", r.Steps[0].Name)
	assert.Equal(t, "1", r.Parameters["timestamp"])
}
