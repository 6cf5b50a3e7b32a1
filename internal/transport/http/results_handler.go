package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "github.com/Chrswb4/startup-ds-workshop/internal/errors"
	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
	"github.com/Chrswb4/startup-ds-workshop/internal/services"
)

// ResultsHandler serves aggregated results from the warehouse
type ResultsHandler struct {
	service *services.ResultsService
	logger  *slog.Logger
}

// NewResultsHandler creates a new results handler
func NewResultsHandler(service *services.ResultsService, logger *slog.Logger) *ResultsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResultsHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "results")),
	}
}

// Routes returns a chi router for result endpoints
func (h *ResultsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/classes", h.GetClassCounts)
	return r
}

// ClassCountsResponse is the body of GET /api/results/classes
type ClassCountsResponse struct {
	Classes   interface{} `json:"classes"`
	Count     int         `json:"count"`
	Timestamp time.Time   `json:"timestamp"`
}

// GetClassCounts handles GET /api/results/classes
func (h *ResultsHandler) GetClassCounts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	rows, err := h.service.ClassCounts(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read results", slog.String("error", err.Error()))
		render.Render(w, r, apperrors.NewInternalProblem(
			"failed to read class counts", r.URL.Path, infrastructure.TraceIDFromContext(ctx)))
		return
	}

	render.JSON(w, r, ClassCountsResponse{
		Classes:   rows,
		Count:     len(rows),
		Timestamp: time.Now().UTC(),
	})
}
