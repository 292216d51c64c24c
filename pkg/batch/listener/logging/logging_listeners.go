// Package logging provides listeners that write job, step, chunk and fault events to the batch logger.
package logging

import (
	"context"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Listener logs every event it receives. Pass it to item.WithListeners, tasklet.WithStepListeners or
// runner.WithJobListeners; it registers for each category it implements.
type Listener struct {
	// LogItems includes the item value in skip and retry messages.
	LogItems bool
}

var (
	_ port.JobExecutionListener  = (*Listener)(nil)
	_ port.StepExecutionListener = (*Listener)(nil)
	_ port.ChunkListener         = (*Listener)(nil)
	_ port.SkipListener          = (*Listener)(nil)
	_ port.RetryItemListener     = (*Listener)(nil)
	_ port.ItemReadListener      = (*Listener)(nil)
	_ port.ItemProcessListener   = (*Listener)(nil)
	_ port.ItemWriteListener     = (*Listener)(nil)
)

// NewListener creates a logging listener.
func NewListener() *Listener {
	return &Listener{}
}

func stepName(ctx context.Context) string {
	if se := port.GetStepExecutionFromContext(ctx); se != nil {
		return se.StepName
	}
	return ""
}

func (l *Listener) item(item interface{}) interface{} {
	if l.LogItems {
		return item
	}
	return "<hidden>"
}

func (l *Listener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	logger.With("job", jobExecution.JobName, "execution", jobExecution.ID).
		Infof("Job started. Parameters: %s", jobExecution.Parameters.String())
}

func (l *Listener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	log := logger.With("job", jobExecution.JobName, "execution", jobExecution.ID, "status", jobExecution.Status)
	if jobExecution.Status == model.BatchStatusCompleted {
		log.Infof("Job finished in %s.", jobExecution.Duration())
		return
	}
	log.Warnf("Job finished in %s. Failures: %v", jobExecution.Duration(), jobExecution.Failures)
}

func (l *Listener) BeforeStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.With("step", stepExecution.StepName, "execution", stepExecution.ID).Infof("Step started.")
}

func (l *Listener) AfterStep(ctx context.Context, stepExecution *model.StepExecution) {
	logger.With("step", stepExecution.StepName, "status", stepExecution.Status).
		Infof("Step finished. read=%d write=%d filter=%d skip=%d commit=%d rollback=%d",
			stepExecution.ReadCount, stepExecution.WriteCount, stepExecution.FilterCount,
			stepExecution.SkipCount(), stepExecution.CommitCount, stepExecution.RollbackCount)
}

func (l *Listener) BeforeChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("Chunk started. Step: %s", stepExecution.StepName)
}

func (l *Listener) AfterChunk(ctx context.Context, stepExecution *model.StepExecution) {
	logger.Debugf("Chunk committed. Step: %s, Read: %d, Write: %d", stepExecution.StepName, stepExecution.ReadCount, stepExecution.WriteCount)
}

func (l *Listener) AfterChunkError(ctx context.Context, stepExecution *model.StepExecution, err error) {
	logger.Warnf("Chunk rolled back. Step: %s, Error: %v", stepExecution.StepName, err)
}

func (l *Listener) OnSkipRead(ctx context.Context, err error) {
	logger.Warnf("Skipped unreadable item in step '%s': %v", stepName(ctx), err)
}

func (l *Listener) OnSkipProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("Skipped item %+v in step '%s': %v", l.item(item), stepName(ctx), err)
}

func (l *Listener) OnRetryRead(ctx context.Context, err error) {
	logger.Warnf("Retrying read in step '%s': %v", stepName(ctx), err)
}

func (l *Listener) OnRetryProcess(ctx context.Context, item interface{}, err error) {
	logger.Warnf("Retrying item %+v in step '%s': %v", l.item(item), stepName(ctx), err)
}

func (l *Listener) OnRetryWrite(ctx context.Context, items []interface{}, err error) {
	logger.Warnf("Retrying write of %d items in step '%s': %v", len(items), stepName(ctx), err)
}

func (l *Listener) OnReadError(ctx context.Context, err error) {
	logger.Errorf("Read failed in step '%s': %v", stepName(ctx), err)
}

func (l *Listener) OnProcessError(ctx context.Context, item interface{}, err error) {
	logger.Errorf("Processing item %+v failed in step '%s': %v", l.item(item), stepName(ctx), err)
}

func (l *Listener) OnWriteError(ctx context.Context, items []interface{}, err error) {
	logger.Errorf("Writing %d items failed in step '%s': %v", len(items), stepName(ctx), err)
}
