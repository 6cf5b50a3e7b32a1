package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "github.com/Chrswb4/startup-ds-workshop/internal/errors"
	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
	"github.com/Chrswb4/startup-ds-workshop/internal/services"
)

// JobsHandler exposes the async job queue
type JobsHandler struct {
	service *services.RunService
	logger  *slog.Logger
}

// NewJobsHandler creates a new jobs handler
func NewJobsHandler(service *services.RunService, logger *slog.Logger) *JobsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "jobs")),
	}
}

// Routes returns a chi router for job endpoints
func (h *JobsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListJobs)
	r.Get("/stats", h.QueueStats)
	r.Get("/{id}", h.GetJob)

	return r
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	jobID := chi.URLParam(r, "id")

	job, err := h.service.GetJob(ctx, jobID)
	if err != nil {
		render.Render(w, r, apperrors.NewProblemDetails(
			http.StatusNotFound,
			"/errors/not_found",
			"job not found",
			err.Error(),
			r.URL.Path,
		).WithExtension("trace_id", infrastructure.TraceIDFromContext(ctx)))
		return
	}

	render.JSON(w, r, job)
}

// ListJobs handles GET /api/jobs with optional status and run_id filters
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter := pipeline.JobFilter{
		Status: pipeline.JobStatus(r.URL.Query().Get("status")),
		RunID:  r.URL.Query().Get("run_id"),
		Task:   r.URL.Query().Get("task"),
	}

	jobs, err := h.service.ListJobs(ctx, filter)
	if err != nil {
		render.Render(w, r, apperrors.NewInternalProblem(
			"failed to list jobs", r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// QueueStats handles GET /api/jobs/stats
func (h *JobsHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.QueueStats())
}
