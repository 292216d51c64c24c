// Package api exposes the job launcher, operator and explorer over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tigerroll/chunkbatch/pkg/batch/core/application/usecase"
	model "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/chunkbatch/pkg/batch/core/domain/repository"
	"github.com/tigerroll/chunkbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/chunkbatch/pkg/batch/support/util/logger"
)

// Shortcut maps a fixed path under /batch to a job launched with a fresh "timestamp" parameter.
type Shortcut struct {
	Path    string
	JobName string
}

// ShortcutResponse is the compact answer of a shortcut launch.
type ShortcutResponse struct {
	ExecutionID string          `json:"executionId"`
	JobName     string          `json:"jobName"`
	Status      model.JobStatus `json:"status"`
	WriteCount  int             `json:"writeCount"`
	SkipCount   int             `json:"skipCount"`
	Message     string          `json:"message,omitempty"`
}

// JobSummary describes one registered job.
type JobSummary struct {
	Name    string   `json:"name"`
	Running []string `json:"runningExecutionIds"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves the batch trigger endpoints.
type Handler struct {
	launcher  usecase.JobLauncher
	operator  usecase.JobOperator
	explorer  usecase.JobExplorer
	registry  *usecase.JobRegistry
	metrics   http.Handler
	shortcuts []Shortcut
	now       func() time.Time
}

// Option configures a Handler.
type Option func(*Handler)

// WithMetricsHandler serves h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(handler *Handler) { handler.metrics = h }
}

// WithShortcuts registers POST /batch/<path> shortcuts.
func WithShortcuts(shortcuts ...Shortcut) Option {
	return func(handler *Handler) { handler.shortcuts = append(handler.shortcuts, shortcuts...) }
}

// WithClock replaces time.Now for the shortcut timestamps.
func WithClock(now func() time.Time) Option {
	return func(handler *Handler) { handler.now = now }
}

// NewHandler creates a Handler.
func NewHandler(launcher usecase.JobLauncher, operator usecase.JobOperator, explorer usecase.JobExplorer, registry *usecase.JobRegistry, opts ...Option) *Handler {
	h := &Handler{
		launcher: launcher,
		operator: operator,
		explorer: explorer,
		registry: registry,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes builds the chi router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
	})
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	r.Route("/batch", func(r chi.Router) {
		r.Get("/jobs", h.listJobs)
		r.Post("/jobs/{jobName}", h.launchJob)
		r.Post("/jobs/{jobName}/next", h.startNextInstance)
		r.Get("/executions/{executionID}", h.getExecution)
		r.Post("/executions/{executionID}/stop", h.stopExecution)
		r.Post("/executions/{executionID}/restart", h.restartExecution)
		r.Post("/executions/{executionID}/abandon", h.abandonExecution)
		for _, s := range h.shortcuts {
			r.Post("/"+strings.TrimPrefix(s.Path, "/"), h.shortcut(s.JobName))
		}
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		logger.Debugf("HTTP %s %s -> %d (%s, request %s)", r.Method, r.URL.Path, ww.Status(), time.Since(start), middleware.GetReqID(r.Context()))
	})
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	names := h.registry.JobNames()
	jobs := make([]JobSummary, 0, len(names))
	for _, name := range names {
		running, err := h.explorer.FindRunningJobExecutions(r.Context(), name)
		if err != nil {
			writeError(w, err)
			return
		}
		summary := JobSummary{Name: name, Running: []string{}}
		for _, je := range running {
			summary.Running = append(summary.Running, je.ID)
		}
		jobs = append(jobs, summary)
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (h *Handler) launchJob(w http.ResponseWriter, r *http.Request) {
	jobName := chi.URLParam(r, "jobName")
	params, err := decodeParameters(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		je, err := h.launcher.Start(r.Context(), jobName, params)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, model.NewExecutionReport(je))
		return
	}

	je, err := h.run(r, jobName, params)
	if je == nil {
		writeError(w, err)
		return
	}
	if err != nil {
		logger.Warnf("Job '%s' (Execution ID: %s) ended with error: %v", jobName, je.ID, err)
	}
	writeJSON(w, http.StatusOK, model.NewExecutionReport(je))
}

// run launches jobName synchronously. A client that disconnects or times out does not stop the
// execution; only the stop endpoint does.
func (h *Handler) run(r *http.Request, jobName string, params model.JobParameters) (*model.JobExecution, error) {
	return h.launcher.Run(context.WithoutCancel(r.Context()), jobName, params)
}

func (h *Handler) startNextInstance(w http.ResponseWriter, r *http.Request) {
	je, err := h.operator.StartNextInstance(r.Context(), chi.URLParam(r, "jobName"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, model.NewExecutionReport(je))
}

func (h *Handler) getExecution(w http.ResponseWriter, r *http.Request) {
	je, err := h.explorer.GetJobExecution(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, model.NewExecutionReport(je))
}

func (h *Handler) stopExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	if err := h.operator.Stop(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"executionId": id, "status": string(model.BatchStatusStopping)})
}

func (h *Handler) restartExecution(w http.ResponseWriter, r *http.Request) {
	je, err := h.operator.Restart(r.Context(), chi.URLParam(r, "executionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, model.NewExecutionReport(je))
}

func (h *Handler) abandonExecution(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "executionID")
	if err := h.operator.Abandon(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"executionId": id, "status": string(model.BatchStatusAbandoned)})
}

// shortcut runs jobName synchronously with a fresh timestamp, like a button in an operations console.
func (h *Handler) shortcut(jobName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := model.NewJobParametersBuilder().
			AddLong("timestamp", h.now().UnixMilli()).
			ToJobParameters()
		je, err := h.run(r, jobName, params)
		if je == nil {
			writeError(w, err)
			return
		}
		report := model.NewExecutionReport(je)
		resp := ShortcutResponse{
			ExecutionID: report.ExecutionID,
			JobName:     jobName,
			Status:      report.Status,
			WriteCount:  report.TotalWriteCount(),
			SkipCount:   report.TotalSkipCount(),
		}
		if err != nil {
			resp.Message = err.Error()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// decodeParameters reads the JSON body as JobParameters. An empty body is an empty parameter set.
func decodeParameters(r *http.Request) (model.JobParameters, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return model.JobParameters{}, badRequest{err}
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return model.NewJobParameters(), nil
	}
	var params model.JobParameters
	if err := json.Unmarshal(body, &params); err != nil {
		return model.JobParameters{}, badRequest{err}
	}
	return params, nil
}

type badRequest struct{ err error }

func (b badRequest) Error() string { return "invalid job parameters: " + b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

// statusFor maps launcher and operator errors to HTTP status codes.
func statusFor(err error) int {
	var br badRequest
	switch {
	case errors.As(err, &br), errors.Is(err, usecase.ErrInvalidJobParameters), errors.Is(err, usecase.ErrNoIncrementer):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrNoSuchJob), errors.Is(err, repository.ErrJobExecutionNotFound):
		return http.StatusNotFound
	case errors.Is(err, exception.ErrDuplicateRun), errors.Is(err, exception.ErrConcurrentRun), errors.Is(err, usecase.ErrIllegalExecutionState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Errorf("Batch API request failed: %v", err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("Batch API: failed to encode response: %v", err)
	}
}
