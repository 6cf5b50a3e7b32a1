// Package http contains the chi HTTP handlers for the workshop server.
package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/Chrswb4/startup-ds-workshop/internal/errors"
	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
	"github.com/Chrswb4/startup-ds-workshop/internal/middleware"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
	"github.com/Chrswb4/startup-ds-workshop/internal/services"
)

// RunsHandler handles run-related HTTP requests
type RunsHandler struct {
	service *services.RunService
	logger  *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(service *services.RunService, logger *slog.Logger) *RunsHandler {
	if service == nil {
		panic("service cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RunsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "runs")),
	}
}

// RunStartRequest is the body of POST /api/runs
type RunStartRequest struct {
	Task       string                 `json:"task,omitempty"`
	Force      bool                   `json:"force,omitempty"`
	DatasetURL string                 `json:"dataset_url,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// Bind implements render.Binder
func (r *RunStartRequest) Bind(req *http.Request) error {
	if r.Task != "" {
		valid := map[string]bool{
			pipeline.TaskIDExtract:   true,
			pipeline.TaskIDTransform: true,
			pipeline.TaskIDLoad:      true,
			pipeline.TaskIDReport:    true,
		}
		if !valid[r.Task] {
			return fmt.Errorf("unknown task: %s", r.Task)
		}
	}
	return nil
}

// RunStartResponse is the body of a successful POST /api/runs
type RunStartResponse struct {
	JobID  string `json:"job_id"`
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// Routes returns a chi router for run endpoints
func (h *RunsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Timeout(60*time.Second, h.logger))

	r.Post("/", h.StartRun)
	r.Get("/", h.ListRuns)
	r.Get("/{id}", h.GetRun)
	r.Post("/{id}/stop", h.StopRun)

	return r
}

// StartRun handles POST /api/runs. The run executes asynchronously;
// the response carries the job and run IDs for polling.
func (h *RunsHandler) StartRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("runs-handler")

	ctx, span := tracer.Start(ctx, "runs_handler.start_run",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/runs"),
			attribute.String("request_id", reqID),
		),
	)
	defer span.End()

	// An empty body starts the full workflow with defaults
	data := &RunStartRequest{}
	if err := render.Bind(r, data); err != nil && !errors.Is(err, io.EOF) {
		span.RecordError(err)
		h.logger.WarnContext(ctx, "invalid run request",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		render.Render(w, r, apperrors.NewValidationProblem(
			err.Error(), r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	req := pipeline.RunRequest{
		Task:       data.Task,
		Force:      data.Force,
		Parameters: data.Parameters,
	}
	if data.DatasetURL != "" {
		if req.Parameters == nil {
			req.Parameters = make(map[string]interface{})
		}
		req.Parameters["dataset_url"] = data.DatasetURL
	}

	job, err := h.service.StartRun(ctx, req)
	if err != nil {
		span.RecordError(err)
		h.logger.ErrorContext(ctx, "failed to start run",
			slog.String("error", err.Error()),
			slog.String("request_id", reqID))

		render.Render(w, r, apperrors.NewInternalProblem(
			"failed to start run", r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	span.SetAttributes(
		attribute.String("run.id", job.RunID),
		attribute.String("job.id", job.ID),
	)

	render.Status(r, http.StatusAccepted)
	render.JSON(w, r, RunStartResponse{
		JobID:  job.ID,
		RunID:  job.RunID,
		Status: string(job.Status),
	})
}

// GetRun handles GET /api/runs/{id}
func (h *RunsHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")

	state, err := h.service.GetRun(ctx, runID)
	if err != nil {
		render.Render(w, r, apperrors.NewRunNotFoundProblem(
			runID, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	render.JSON(w, r, state)
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs := h.service.ListRuns(r.Context())
	render.JSON(w, r, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// StopRun handles POST /api/runs/{id}/stop
func (h *RunsHandler) StopRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	runID := chi.URLParam(r, "id")
	traceID := infrastructure.TraceIDFromContext(ctx)

	if err := h.service.StopRun(ctx, runID); err != nil {
		var pErr *pipeline.PipelineError
		if errors.As(err, &pErr) {
			switch pErr.Type {
			case pipeline.ErrorTypeNotFound:
				render.Render(w, r, apperrors.NewRunNotFoundProblem(runID, traceID))
				return
			case pipeline.ErrorTypeInvalidState:
				render.Render(w, r, apperrors.NewRunConflictProblem(runID, pErr.Message, traceID))
				return
			}
		}
		render.Render(w, r, apperrors.NewInternalProblem("failed to stop run", r.URL.Path, traceID))
		return
	}

	render.JSON(w, r, map[string]string{
		"run_id": runID,
		"status": "cancelling",
	})
}
