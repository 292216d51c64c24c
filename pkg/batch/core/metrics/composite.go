package metrics

import (
	"context"
	"time"

	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
)

// CompositeMetricRecorder forwards every call to each of its recorders in order.
type CompositeMetricRecorder struct {
	recorders []MetricRecorder
}

// NewCompositeMetricRecorder creates a fan-out recorder. Nil recorders are ignored.
func NewCompositeMetricRecorder(recorders ...MetricRecorder) *CompositeMetricRecorder {
	c := &CompositeMetricRecorder{}
	for _, r := range recorders {
		if r != nil {
			c.recorders = append(c.recorders, r)
		}
	}
	return c
}

func (c *CompositeMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c.recorders {
		r.RecordJobStart(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	for _, r := range c.recorders {
		r.RecordJobEnd(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordStepStart(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	for _, r := range c.recorders {
		r.RecordStepEnd(ctx, execution)
	}
}

func (c *CompositeMetricRecorder) RecordItemRead(ctx context.Context, stepName string) {
	for _, r := range c.recorders {
		r.RecordItemRead(ctx, stepName)
	}
}

func (c *CompositeMetricRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	for _, r := range c.recorders {
		r.RecordItemProcess(ctx, stepName)
	}
}

func (c *CompositeMetricRecorder) RecordItemFilter(ctx context.Context, stepName string) {
	for _, r := range c.recorders {
		r.RecordItemFilter(ctx, stepName)
	}
}

func (c *CompositeMetricRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	for _, r := range c.recorders {
		r.RecordItemWrite(ctx, stepName, count)
	}
}

func (c *CompositeMetricRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	for _, r := range c.recorders {
		r.RecordItemSkip(ctx, stepName, reason)
	}
}

func (c *CompositeMetricRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	for _, r := range c.recorders {
		r.RecordItemRetry(ctx, stepName, reason)
	}
}

func (c *CompositeMetricRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	for _, r := range c.recorders {
		r.RecordChunkCommit(ctx, stepName, count)
	}
}

func (c *CompositeMetricRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	for _, r := range c.recorders {
		r.RecordChunkRollback(ctx, stepName)
	}
}

func (c *CompositeMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	for _, r := range c.recorders {
		r.RecordDuration(ctx, name, duration, tags)
	}
}

var _ MetricRecorder = (*CompositeMetricRecorder)(nil)
