package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails implements RFC 7807 Problem Details for HTTP APIs
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// Additional fields for extensibility
	Extensions map[string]interface{} `json:"-"`
}

// Render implements the render.Renderer interface
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// MarshalJSON custom marshaler to include extensions
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	data := make(map[string]interface{})

	data["type"] = pd.Type
	data["title"] = pd.Title
	data["status"] = pd.Status

	if pd.Detail != "" {
		data["detail"] = pd.Detail
	}
	if pd.Instance != "" {
		data["instance"] = pd.Instance
	}

	for k, v := range pd.Extensions {
		data[k] = v
	}

	return json.Marshal(data)
}

// NewProblemDetails creates a new RFC 7807 compliant error
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:       problemType,
		Title:      title,
		Status:     status,
		Detail:     detail,
		Instance:   instance,
		Extensions: make(map[string]interface{}),
	}
}

// WithExtension adds an extension field to the problem details
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	pd.Extensions[key] = value
	return pd
}

// NewRunNotFoundProblem creates a problem for an unknown pipeline run
func NewRunNotFoundProblem(runID, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusNotFound,
		"/errors/run-not-found",
		"Pipeline Run Not Found",
		fmt.Sprintf("No pipeline run with id %q is known to this server.", runID),
		fmt.Sprintf("/api/runs/%s", runID),
	)
	return problem.WithExtension("run_id", runID).WithExtension("trace_id", traceID)
}

// NewRunConflictProblem creates a problem for a run that cannot accept the request
func NewRunConflictProblem(runID, detail, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusConflict,
		"/errors/run-conflict",
		"Pipeline Run Conflict",
		detail,
		fmt.Sprintf("/api/runs/%s", runID),
	)
	return problem.WithExtension("run_id", runID).WithExtension("trace_id", traceID)
}

// NewValidationProblem creates a problem for an invalid request body
func NewValidationProblem(detail, instance, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusBadRequest,
		"/errors/validation",
		"Validation Failed",
		detail,
		instance,
	)
	return problem.WithExtension("trace_id", traceID)
}

// NewInternalProblem creates a problem for an unexpected server failure
func NewInternalProblem(detail, instance, traceID string) *ProblemDetails {
	problem := NewProblemDetails(
		http.StatusInternalServerError,
		"/errors/internal",
		"Internal Server Error",
		detail,
		instance,
	)
	return problem.WithExtension("trace_id", traceID)
}
