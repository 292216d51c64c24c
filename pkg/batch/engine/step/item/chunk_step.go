package item

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"time"

	"github.com/hashicorp/go-multierror"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/fault"
	exception "github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// ChunkStep is a port.Step that reads, processes and writes items in transactional chunks.
// I is the type read from the reader, O the type handed to the writer.
type ChunkStep[I, O any] struct {
	name          string
	reader        port.ItemReader[I]
	processor     port.ItemProcessor[I, O]
	writer        port.ItemWriter[O]
	chunkSize     int
	txManager     tx.TransactionManager
	jobRepository repository.StepExecution

	options
}

var _ port.Step = (*ChunkStep[any, any])(nil)

// NewChunkStep creates a chunk step. A nil processor passes items through unchanged, which requires
// I and O to be the same type.
func NewChunkStep[I, O any](
	name string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	chunkSize int,
	txManager tx.TransactionManager,
	jobRepository repository.StepExecution,
	opts ...Option,
) (*ChunkStep[I, O], error) {
	if reader == nil || writer == nil {
		return nil, fmt.Errorf("chunk step '%s' requires a reader and a writer", name)
	}
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk step '%s': chunk size must be at least 1, got %d", name, chunkSize)
	}
	if txManager == nil || jobRepository == nil {
		return nil, fmt.Errorf("chunk step '%s' requires a transaction manager and a job repository", name)
	}
	o := newOptions(opts)
	if err := o.policy.Validate(); err != nil {
		return nil, fmt.Errorf("chunk step '%s': %w", name, err)
	}
	if processor == nil {
		processor = passThrough[I, O]{}
	}
	return &ChunkStep[I, O]{
		name:          name,
		reader:        reader,
		processor:     processor,
		writer:        writer,
		chunkSize:     chunkSize,
		txManager:     txManager,
		jobRepository: jobRepository,
		options:       o,
	}, nil
}

// StepName returns the step name.
func (s *ChunkStep[I, O]) StepName() string {
	return s.name
}

// Policy returns the fault policy of the step.
func (s *ChunkStep[I, O]) Policy() fault.Policy {
	return s.policy
}

// Execute runs chunk cycles until the reader is exhausted, a fatal error occurs or ctx is cancelled.
// Cancellation is observed between chunks and ends the step as STOPPED without error.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, jobExecution *model.JobExecution, stepExecution *model.StepExecution) error {
	ctx, endSpan := s.tracer.StartStepSpan(ctx, stepExecution)
	defer endSpan()
	ctx = port.GetContextWithStepExecution(ctx, stepExecution)

	logger.Infof("ChunkStep '%s' executing (chunk size %d).", s.name, s.chunkSize)
	stepExecution.MarkAsStarted()
	s.metricRecorder.RecordStepStart(ctx, stepExecution)
	for _, l := range s.stepListeners {
		l.BeforeStep(ctx, stepExecution)
	}

	persistCtx := context.WithoutCancel(ctx)
	var stepErr error
	if err := s.jobRepository.UpdateStepExecution(persistCtx, stepExecution); err != nil {
		stepErr = exception.NewBatchError(s.name, "failed to update StepExecution status to STARTED", err, false, false)
	} else {
		stepErr = s.process(ctx, stepExecution)
	}

	switch {
	case errors.Is(stepErr, errStopped):
		stepErr = nil
		stepExecution.MarkAsStopped()
	case stepErr != nil:
		s.tracer.RecordError(ctx, s.name, stepErr)
		stepExecution.MarkAsFailed(stepErr)
	default:
		stepExecution.MarkAsCompleted()
	}

	for _, l := range s.stepListeners {
		l.AfterStep(ctx, stepExecution)
	}
	s.metricRecorder.RecordStepEnd(ctx, stepExecution)

	if err := s.jobRepository.UpdateStepExecution(persistCtx, stepExecution); err != nil {
		logger.Errorf("ChunkStep '%s': failed to update final StepExecution state: %v", s.name, err)
		if stepErr == nil {
			stepErr = err
		}
	}
	logger.Infof("ChunkStep '%s' finished. %s", s.name, stepExecution.DebugString())
	return stepErr
}

var errStopped = errors.New("step stopped")

func (s *ChunkStep[I, O]) process(ctx context.Context, se *model.StepExecution) (err error) {
	// Item I/O is never interrupted mid-chunk.
	ioCtx := context.WithoutCancel(ctx)

	if err := s.reader.Open(ioCtx, se.ExecutionContext.Copy()); err != nil {
		return exception.NewResourceError(s.name, "failed to open ItemReader", err)
	}
	if err := s.writer.Open(ioCtx, se.ExecutionContext.Copy()); err != nil {
		if closeErr := s.reader.Close(ioCtx); closeErr != nil {
			logger.Warnf("ChunkStep '%s': failed to close ItemReader: %v", s.name, closeErr)
		}
		return exception.NewResourceError(s.name, "failed to open ItemWriter", err)
	}
	defer func() {
		var closeErrs *multierror.Error
		if cerr := s.reader.Close(ioCtx); cerr != nil {
			closeErrs = multierror.Append(closeErrs, fmt.Errorf("close ItemReader: %w", cerr))
		}
		if cerr := s.writer.Close(ioCtx); cerr != nil {
			closeErrs = multierror.Append(closeErrs, fmt.Errorf("close ItemWriter: %w", cerr))
		}
		if closeErrs != nil && err == nil {
			err = exception.NewResourceError(s.name, "failed to close step resources", closeErrs.ErrorOrNil())
		}
	}()

	state := &fault.State{}
	for {
		if ctx.Err() != nil {
			logger.Infof("ChunkStep '%s': cancellation observed after %d commits, stopping.", s.name, se.CommitCount)
			return errStopped
		}
		done, err := s.doChunk(ioCtx, se, state)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// chunk is the in-memory state of one chunk cycle.
type chunk[O any] struct {
	items   []O
	contrib model.StepContribution
	eof     bool
}

// doChunk runs one chunk cycle. It reports done once the reader is exhausted.
func (s *ChunkStep[I, O]) doChunk(ctx context.Context, se *model.StepExecution, state *fault.State) (bool, error) {
	started := time.Now()
	t, err := s.txManager.Begin(ctx, s.txOptions)
	if err != nil {
		return false, exception.NewChunkError(s.name, "failed to begin transaction for chunk", err)
	}
	txCtx := tx.WithTx(ctx, t)
	for _, l := range s.chunkListeners {
		l.BeforeChunk(txCtx, se)
	}

	c := &chunk[O]{items: make([]O, 0, s.chunkSize)}
	if err := s.fill(txCtx, c, state); err != nil {
		s.rollback(txCtx, t, se, err)
		return false, err
	}

	if c.eof && len(c.items) == 0 && c.contrib.IsEmpty() {
		if err := s.txManager.Rollback(t); err != nil {
			logger.Warnf("ChunkStep '%s': failed to release empty transaction: %v", s.name, err)
		}
		return true, nil
	}

	if len(c.items) > 0 {
		if t, err = s.write(txCtx, t, se, c); err != nil {
			return false, err
		}
		txCtx = tx.WithTx(ctx, t)
	}

	if err := s.txManager.Commit(t); err != nil {
		s.rollback(txCtx, t, se, err)
		return false, exception.NewChunkError(s.name, "failed to commit chunk", err)
	}

	se.Apply(c.contrib)
	s.metricRecorder.RecordChunkCommit(txCtx, s.name, len(c.items))
	s.metricRecorder.RecordDuration(txCtx, "chunk_duration", time.Since(started), map[string]string{"step": s.name})
	s.tracer.RecordEvent(txCtx, "chunk.commit", map[string]interface{}{
		"step":         s.name,
		"read":         c.contrib.ReadCount,
		"write":        c.contrib.WriteCount,
		"skip":         c.contrib.SkipCount(),
		"filter":       c.contrib.FilterCount,
		"retries_used": state.RetriesUsed,
		"skips_used":   state.SkipsUsed,
	})
	for _, l := range s.chunkListeners {
		l.AfterChunk(txCtx, se)
	}

	if err := s.saveState(ctx, se); err != nil {
		return false, err
	}
	return c.eof, nil
}

// fill reads and processes items until the chunk holds chunkSize inputs or the reader is exhausted.
// Skipped and filtered items count towards the chunk size.
func (s *ChunkStep[I, O]) fill(ctx context.Context, c *chunk[O], state *fault.State) error {
	for c.contrib.ReadCount < s.chunkSize {
		item, ok, err := s.read(ctx, c, state)
		if err != nil {
			return err
		}
		if c.eof {
			return nil
		}
		if !ok {
			continue
		}
		if err := s.processItem(ctx, c, state, item); err != nil {
			return err
		}
	}
	return nil
}

// read returns the next item. ok is false when the read failed and was skipped.
func (s *ChunkStep[I, O]) read(ctx context.Context, c *chunk[O], state *fault.State) (item I, ok bool, err error) {
	bo := s.policy.NewBackOff()
	for retries := 0; ; retries++ {
		item, err = s.reader.Read(ctx)
		if err == nil {
			c.contrib.ReadCount++
			s.metricRecorder.RecordItemRead(ctx, s.name)
			return item, true, nil
		}
		if errors.Is(err, port.ErrNoMoreItems) {
			c.eof = true
			return item, false, nil
		}

		for _, l := range s.readListeners {
			l.OnReadError(ctx, err)
		}
		switch s.policy.Decide(err, state, retries) {
		case fault.Retry:
			c.contrib.RetryCount++
			logger.Warnf("ChunkStep '%s': read failed (retry %d/%d): %v", s.name, retries+1, s.policy.RetryLimit, err)
			s.notifyRetryRead(ctx, err)
			if werr := fault.Wait(ctx, bo); werr != nil {
				return item, false, werr
			}
		case fault.Skip:
			c.contrib.ReadCount++
			c.contrib.ReadSkipCount++
			logger.Warnf("ChunkStep '%s': read failure skipped (%d/%d): %v", s.name, state.SkipsUsed, s.policy.SkipLimit, err)
			s.notifySkipRead(ctx, err)
			return item, false, nil
		default:
			return item, false, exception.NewItemError(s.name, "item read failed", err, false, false)
		}
	}
}

func (s *ChunkStep[I, O]) processItem(ctx context.Context, c *chunk[O], state *fault.State, item I) error {
	bo := s.policy.NewBackOff()
	for retries := 0; ; retries++ {
		out, err := s.processor.Process(ctx, item)
		if err == nil || errors.Is(err, port.ErrItemFiltered) {
			if err != nil || isNil(out) {
				c.contrib.FilterCount++
				s.metricRecorder.RecordItemFilter(ctx, s.name)
				return nil
			}
			c.items = append(c.items, out)
			s.metricRecorder.RecordItemProcess(ctx, s.name)
			return nil
		}

		for _, l := range s.processListeners {
			l.OnProcessError(ctx, item, err)
		}
		switch s.policy.Decide(err, state, retries) {
		case fault.Retry:
			c.contrib.RetryCount++
			logger.Warnf("ChunkStep '%s': process failed (retry %d/%d): %v", s.name, retries+1, s.policy.RetryLimit, err)
			s.notifyRetryProcess(ctx, item, err)
			if werr := fault.Wait(ctx, bo); werr != nil {
				return werr
			}
		case fault.Skip:
			c.contrib.ProcessSkipCount++
			logger.Warnf("ChunkStep '%s': item skipped (%d/%d): %v", s.name, state.SkipsUsed, s.policy.SkipLimit, err)
			s.notifySkipProcess(ctx, item, err)
			return nil
		default:
			return exception.NewItemError(s.name, fmt.Sprintf("item processing failed for %+v", item), err, false, false)
		}
	}
}

// write hands the buffer to the writer. A failed write rolls the transaction back; a retryable failure
// writes the same buffer again in a fresh transaction. It returns the transaction to commit.
func (s *ChunkStep[I, O]) write(ctx context.Context, t tx.Tx, se *model.StepExecution, c *chunk[O]) (tx.Tx, error) {
	bo := s.policy.NewBackOff()
	for attempts := 1; ; attempts++ {
		err := s.writer.Write(tx.WithTx(ctx, t), t, c.items)
		if err == nil {
			c.contrib.WriteCount += len(c.items)
			s.metricRecorder.RecordItemWrite(ctx, s.name, len(c.items))
			return t, nil
		}

		items := toInterfaces(c.items)
		for _, l := range s.writeListeners {
			l.OnWriteError(ctx, items, err)
		}
		s.rollback(ctx, t, se, err)
		if !s.policy.CanRewrite(err, attempts) {
			return nil, exception.NewChunkError(s.name, fmt.Sprintf("chunk write of %d items failed", len(c.items)), err)
		}

		c.contrib.RetryCount++
		logger.Warnf("ChunkStep '%s': write failed (retry %d/%d), rewriting chunk: %v", s.name, attempts, s.policy.RetryLimit, err)
		s.notifyRetryWrite(ctx, items, err)
		if werr := fault.Wait(ctx, bo); werr != nil {
			return nil, werr
		}
		if t, err = s.txManager.Begin(ctx, s.txOptions); err != nil {
			return nil, exception.NewChunkError(s.name, "failed to begin transaction for chunk rewrite", err)
		}
	}
}

func (s *ChunkStep[I, O]) rollback(ctx context.Context, t tx.Tx, se *model.StepExecution, cause error) {
	if err := s.txManager.Rollback(t); err != nil {
		logger.Warnf("ChunkStep '%s': rollback failed: %v", s.name, err)
	}
	se.RollbackCount++
	s.metricRecorder.RecordChunkRollback(ctx, s.name)
	s.tracer.RecordError(ctx, s.name, cause)
	for _, l := range s.chunkListeners {
		l.AfterChunkError(ctx, se, cause)
	}
}

// saveState copies the reader and writer state into the StepExecution and persists it.
func (s *ChunkStep[I, O]) saveState(ctx context.Context, se *model.StepExecution) error {
	ec := se.ExecutionContext.Copy()
	readerEC, err := s.reader.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "failed to get ExecutionContext from ItemReader", err, false, false)
	}
	ec.Merge(readerEC)
	writerEC, err := s.writer.GetExecutionContext(ctx)
	if err != nil {
		return exception.NewBatchError(s.name, "failed to get ExecutionContext from ItemWriter", err, false, false)
	}
	ec.Merge(writerEC)
	se.ExecutionContext = ec

	if err := s.jobRepository.UpdateStepExecution(ctx, se); err != nil {
		return exception.NewBatchError(s.name, "failed to persist StepExecution after commit", err, false, false)
	}
	logger.Debugf("ChunkStep '%s': chunk committed. %s", s.name, se.DebugString())
	return nil
}

func (s *ChunkStep[I, O]) notifyRetryRead(ctx context.Context, err error) {
	s.metricRecorder.RecordItemRetry(ctx, s.name, "read")
	for _, l := range s.retryListeners {
		l.OnRetryRead(ctx, err)
	}
}

func (s *ChunkStep[I, O]) notifySkipRead(ctx context.Context, err error) {
	s.metricRecorder.RecordItemSkip(ctx, s.name, "read")
	for _, l := range s.skipListeners {
		l.OnSkipRead(ctx, err)
	}
}

func (s *ChunkStep[I, O]) notifyRetryProcess(ctx context.Context, item any, err error) {
	s.metricRecorder.RecordItemRetry(ctx, s.name, "process")
	for _, l := range s.retryListeners {
		l.OnRetryProcess(ctx, item, err)
	}
}

func (s *ChunkStep[I, O]) notifySkipProcess(ctx context.Context, item any, err error) {
	s.metricRecorder.RecordItemSkip(ctx, s.name, "process")
	for _, l := range s.skipListeners {
		l.OnSkipProcess(ctx, item, err)
	}
}

func (s *ChunkStep[I, O]) notifyRetryWrite(ctx context.Context, items []interface{}, err error) {
	s.metricRecorder.RecordItemRetry(ctx, s.name, "write")
	for _, l := range s.retryListeners {
		l.OnRetryWrite(ctx, items, err)
	}
}

type passThrough[I, O any] struct{}

func (passThrough[I, O]) Process(ctx context.Context, item I) (O, error) {
	out, ok := any(item).(O)
	if !ok {
		var zero O
		return zero, fmt.Errorf("cannot pass %T through as %T without a processor", item, zero)
	}
	return out, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

func toInterfaces[O any](items []O) []interface{} {
	out := make([]interface{}, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}
