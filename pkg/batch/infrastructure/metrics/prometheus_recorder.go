package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	port "github.com/tigerroll/chunkbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/chunkbatch/pkg/batch/core/metrics"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
// It owns its registry; Handler serves it in the exposition format.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec
	jobsRunning        *prometheus.GaugeVec

	stepDurationSeconds *prometheus.HistogramVec
	stepStatusCounter   *prometheus.CounterVec

	itemReadCounter    *prometheus.CounterVec
	itemProcessCounter *prometheus.CounterVec
	itemFilterCounter  *prometheus.CounterVec
	itemWriteCounter   *prometheus.CounterVec
	itemSkipCounter    *prometheus.CounterVec
	itemRetryCounter   *prometheus.CounterVec

	chunkCommitCounter   *prometheus.CounterVec
	chunkRollbackCounter *prometheus.CounterVec
	operationSeconds     *prometheus.HistogramVec
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder creates a recorder with a fresh registry that also carries the Go and process collectors.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	stepLabels := []string{"job_name", "step_name"}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "status", "exit_status"}),
		jobStatusCounter: counter("batch_job_status_total", "Finished batch job executions by status.", "job_name", "status"),
		jobsRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_jobs_running",
			Help: "Job executions currently running in this process.",
		}, []string{"job_name"}),
		stepDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_step_duration_seconds",
			Help:    "Duration of batch step executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "step_name", "status"}),
		stepStatusCounter:    counter("batch_step_status_total", "Finished batch step executions by status.", "job_name", "step_name", "status"),
		itemReadCounter:      counter("batch_item_read_total", "Items read.", stepLabels...),
		itemProcessCounter:   counter("batch_item_process_total", "Items processed.", stepLabels...),
		itemFilterCounter:    counter("batch_item_filter_total", "Items filtered by the processor.", stepLabels...),
		itemWriteCounter:     counter("batch_item_write_total", "Items written.", stepLabels...),
		itemSkipCounter:      counter("batch_item_skip_total", "Items skipped, by phase.", "job_name", "step_name", "phase"),
		itemRetryCounter:     counter("batch_item_retry_total", "Retries, by phase.", "job_name", "step_name", "phase"),
		chunkCommitCounter:   counter("batch_chunk_commit_total", "Committed chunks.", stepLabels...),
		chunkRollbackCounter: counter("batch_chunk_rollback_total", "Rolled back chunks.", stepLabels...),
		operationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named operations such as chunk processing.",
			Buckets: prometheus.DefBuckets,
		}, []string{"name", "step"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds, r.jobStatusCounter, r.jobsRunning,
		r.stepDurationSeconds, r.stepStatusCounter,
		r.itemReadCounter, r.itemProcessCounter, r.itemFilterCounter, r.itemWriteCounter,
		r.itemSkipCounter, r.itemRetryCounter,
		r.chunkCommitCounter, r.chunkRollbackCounter, r.operationSeconds,
	)
	return r
}

// Registry returns the Prometheus registry.
func (r *PrometheusRecorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry for scraping.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// jobNameFrom returns the job of the step running in ctx, or "" outside a step.
func jobNameFrom(ctx context.Context) string {
	if se := port.GetStepExecutionFromContext(ctx); se != nil && se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return ""
}

func stepJobName(se *model.StepExecution) string {
	if se.JobExecution != nil {
		return se.JobExecution.JobName
	}
	return ""
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobsRunning.WithLabelValues(execution.JobName).Inc()
}

// RecordJobEnd records the end of a JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	r.jobsRunning.WithLabelValues(execution.JobName).Dec()
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Status.String()).Inc()
	duration := execution.Duration().Seconds()
	r.jobDurationSeconds.WithLabelValues(execution.JobName, execution.Status.String(), execution.ExitStatus.String()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended. Duration: %.3fs", execution.JobName, duration)
}

// RecordStepStart is a no-op; steps are counted when they end.
func (r *PrometheusRecorder) RecordStepStart(ctx context.Context, execution *model.StepExecution) {}

// RecordStepEnd records the end of a StepExecution.
func (r *PrometheusRecorder) RecordStepEnd(ctx context.Context, execution *model.StepExecution) {
	jobName := stepJobName(execution)
	r.stepStatusCounter.WithLabelValues(jobName, execution.StepName, execution.Status.String()).Inc()
	if execution.EndTime != nil {
		r.stepDurationSeconds.WithLabelValues(jobName, execution.StepName, execution.Status.String()).
			Observe(execution.EndTime.Sub(execution.StartTime).Seconds())
	}
}

func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, stepName string) {
	r.itemReadCounter.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemProcess(ctx context.Context, stepName string) {
	r.itemProcessCounter.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemFilter(ctx context.Context, stepName string) {
	r.itemFilterCounter.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordItemWrite(ctx context.Context, stepName string, count int) {
	r.itemWriteCounter.WithLabelValues(jobNameFrom(ctx), stepName).Add(float64(count))
}

func (r *PrometheusRecorder) RecordItemSkip(ctx context.Context, stepName string, reason string) {
	r.itemSkipCounter.WithLabelValues(jobNameFrom(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordItemRetry(ctx context.Context, stepName string, reason string) {
	r.itemRetryCounter.WithLabelValues(jobNameFrom(ctx), stepName, reason).Inc()
}

func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, stepName string, count int) {
	r.chunkCommitCounter.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, stepName string) {
	r.chunkRollbackCounter.WithLabelValues(jobNameFrom(ctx), stepName).Inc()
}

// RecordDuration observes duration under name. Only the "step" tag becomes a label.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationSeconds.WithLabelValues(name, tags["step"]).Observe(duration.Seconds())
}
