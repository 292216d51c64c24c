package item

import (
	"database/sql"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	tx "github.com/tigerroll/chunkbatch/pkg/batch/core/tx"
	"github.com/tigerroll/chunkbatch/pkg/batch/engine/step/fault"
)

type options struct {
	policy         fault.Policy
	txOptions      *sql.TxOptions
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer

	stepListeners    []port.StepExecutionListener
	chunkListeners   []port.ChunkListener
	skipListeners    []port.SkipListener
	retryListeners   []port.RetryItemListener
	readListeners    []port.ItemReadListener
	processListeners []port.ItemProcessListener
	writeListeners   []port.ItemWriteListener
}

func newOptions(opts []Option) options {
	o := options{
		policy:         fault.NoFaultTolerance,
		metricRecorder: metrics.NewNoOpMetricRecorder(),
		tracer:         metrics.NewNoOpTracer(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Option configures a ChunkStep.
type Option func(*options)

// WithFaultPolicy sets the skip and retry policy. The default tolerates nothing.
func WithFaultPolicy(p fault.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithIsolationLevel sets the isolation level of chunk transactions, e.g. "READ_COMMITTED".
func WithIsolationLevel(level string) Option {
	return func(o *options) {
		o.txOptions = &sql.TxOptions{Isolation: tx.ParseIsolationLevel(level)}
	}
}

// WithMetricRecorder sets the MetricRecorder.
func WithMetricRecorder(r metrics.MetricRecorder) Option {
	return func(o *options) {
		if r != nil {
			o.metricRecorder = r
		}
	}
}

// WithTracer sets the Tracer.
func WithTracer(t metrics.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithListeners registers listeners. Each listener is added to every listener category it implements.
func WithListeners(listeners ...interface{}) Option {
	return func(o *options) {
		for _, l := range listeners {
			if v, ok := l.(port.StepExecutionListener); ok {
				o.stepListeners = append(o.stepListeners, v)
			}
			if v, ok := l.(port.ChunkListener); ok {
				o.chunkListeners = append(o.chunkListeners, v)
			}
			if v, ok := l.(port.SkipListener); ok {
				o.skipListeners = append(o.skipListeners, v)
			}
			if v, ok := l.(port.RetryItemListener); ok {
				o.retryListeners = append(o.retryListeners, v)
			}
			if v, ok := l.(port.ItemReadListener); ok {
				o.readListeners = append(o.readListeners, v)
			}
			if v, ok := l.(port.ItemProcessListener); ok {
				o.processListeners = append(o.processListeners, v)
			}
			if v, ok := l.(port.ItemWriteListener); ok {
				o.writeListeners = append(o.writeListeners, v)
			}
		}
	}
}
