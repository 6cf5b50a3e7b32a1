package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
	"github.com/Chrswb4/startup-ds-workshop/internal/services"
	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type markerTask struct {
	pipeline.BaseTask
	out *pipeline.LocalTarget
}

func (t *markerTask) Output() pipeline.Target { return t.out }

func (t *markerTask) Execute(ctx context.Context, state *pipeline.RunState) error {
	return os.WriteFile(t.out.Path(), []byte(t.ID()), 0644)
}

func newTestRouter(t *testing.T) (chi.Router, *services.RunService) {
	t.Helper()

	dir := t.TempDir()
	task := &markerTask{
		BaseTask: pipeline.NewBaseTask(pipeline.TaskIDExtract, "Extract", nil),
		out:      pipeline.NewLocalTarget(filepath.Join(dir, "extract.out")),
	}

	registry := pipeline.NewRegistry()
	require.NoError(t, registry.Register(task))

	runner := pipeline.NewRunner(registry, pipeline.NewConfig(), nil, testLogger())
	queue := pipeline.NewJobQueue(1, pipeline.NewMemoryJobStore(), runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	queue.Start(ctx)
	t.Cleanup(func() { queue.Stop(time.Second) })

	runService := services.NewRunService(runner, queue, nil, testLogger())

	r := chi.NewRouter()
	r.Mount("/api/runs", NewRunsHandler(runService, testLogger()).Routes())
	r.Mount("/api/jobs", NewJobsHandler(runService, testLogger()).Routes())

	return r, runService
}

func TestStartRunAccepted(t *testing.T) {
	router, svc := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"task":"extract"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp RunStartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.JobID)
	assert.NotEmpty(t, resp.RunID)

	require.Eventually(t, func() bool {
		job, err := svc.GetJob(context.Background(), resp.JobID)
		return err == nil && job.Status == pipeline.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStartRunEmptyBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", nil)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestStartRunUnknownTask(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"task":"bogus"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown task")
}

func TestGetRunNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/nope", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Not Found")
}

func TestGetRunAfterExecution(t *testing.T) {
	router, svc := newTestRouter(t)

	_, err := svc.ExecuteRun(context.Background(), pipeline.RunRequest{ID: "run-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs/run-1", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var state map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, "completed", state["status"])
}

func TestListRuns(t *testing.T) {
	router, svc := newTestRouter(t)

	_, err := svc.ExecuteRun(context.Background(), pipeline.RunRequest{ID: "run-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/runs", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
}

func TestStopRunConflict(t *testing.T) {
	router, svc := newTestRouter(t)

	_, err := svc.ExecuteRun(context.Background(), pipeline.RunRequest{ID: "run-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/runs/run-1/stop", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestJobsEndpoints(t *testing.T) {
	router, svc := newTestRouter(t)

	job, err := svc.StartRun(context.Background(), pipeline.RunRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		j, err := svc.GetJob(context.Background(), job.ID)
		return err == nil && j.Status == pipeline.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+job.ID, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/stats", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResultsEndpoint(t *testing.T) {
	dir := t.TempDir()
	store, err := warehouse.Open(filepath.Join(dir, "warehouse.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.ReplaceClassCounts(context.Background(), []warehouse.ClassCount{
		{Pclass: "1", Passengers: 216, LoadedAt: time.Now()},
		{Pclass: "2", Passengers: 184, LoadedAt: time.Now()},
		{Pclass: "3", Passengers: 491, LoadedAt: time.Now()},
	}))

	handler := NewResultsHandler(services.NewResultsService(store, testLogger()), testLogger())

	r := chi.NewRouter()
	r.Mount("/api/results", handler.Routes())

	req := httptest.NewRequest(http.MethodGet, "/api/results/classes", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body ClassCountsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 3, body.Count)
}

func TestHealthEndpoints(t *testing.T) {
	dir := t.TempDir()
	store, err := warehouse.Open(filepath.Join(dir, "warehouse.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	handler := NewHealthHandler(services.NewHealthService("1.0.0", "", store, nil, nil, testLogger()), testLogger())

	r := chi.NewRouter()
	r.Mount("/api/health", handler.Routes())
	r.Get("/api/version", handler.Version)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	req = httptest.NewRequest(http.MethodGet, "/api/health/ready", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/version", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "1.0.0")
}
