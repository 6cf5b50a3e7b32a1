package services

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
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

func newRunService(t *testing.T) (*RunService, *pipeline.LocalTarget) {
	t.Helper()

	out := pipeline.NewLocalTarget(filepath.Join(t.TempDir(), "extract.out"))
	task := &markerTask{
		BaseTask: pipeline.NewBaseTask("extract", "Extract", nil),
		out:      out,
	}

	registry := pipeline.NewRegistry()
	require.NoError(t, registry.Register(task))

	runner := pipeline.NewRunner(registry, pipeline.NewConfig(), nil, testLogger())
	queue := pipeline.NewJobQueue(1, pipeline.NewMemoryJobStore(), runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	queue.Start(ctx)
	t.Cleanup(func() { queue.Stop(time.Second) })

	return NewRunService(runner, queue, nil, testLogger()), out
}

func TestRunServiceStartRun(t *testing.T) {
	svc, out := newRunService(t)

	job, err := svc.StartRun(context.Background(), pipeline.RunRequest{})
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.NotEmpty(t, job.RunID)

	require.Eventually(t, func() bool {
		j, err := svc.GetJob(context.Background(), job.ID)
		return err == nil && j.Status == pipeline.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	assert.True(t, out.Exists())

	state, err := svc.GetRun(context.Background(), job.RunID)
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunStatusCompleted, state.GetStatus())
}

func TestRunServiceExecuteRun(t *testing.T) {
	svc, out := newRunService(t)

	resp, err := svc.ExecuteRun(context.Background(), pipeline.RunRequest{ID: "run-sync"})
	require.NoError(t, err)
	assert.Equal(t, pipeline.RunStatusCompleted, resp.Status)
	assert.True(t, out.Exists())
}

func TestRunServiceStopUnknownRun(t *testing.T) {
	svc, _ := newRunService(t)
	assert.Error(t, svc.StopRun(context.Background(), "missing"))
}

func TestRunServiceListRuns(t *testing.T) {
	svc, _ := newRunService(t)

	_, err := svc.ExecuteRun(context.Background(), pipeline.RunRequest{ID: "run-a"})
	require.NoError(t, err)

	runs := svc.ListRuns(context.Background())
	require.Len(t, runs, 1)
	assert.Equal(t, "run-a", runs[0].ID)
}

func TestResultsService(t *testing.T) {
	dir := t.TempDir()
	store, err := warehouse.Open(filepath.Join(dir, "warehouse.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewResultsService(store, testLogger())

	hasResults, err := svc.HasResults(context.Background())
	require.NoError(t, err)
	assert.False(t, hasResults)

	require.NoError(t, store.ReplaceClassCounts(context.Background(), []warehouse.ClassCount{
		{Pclass: "1", Passengers: 216, LoadedAt: time.Now()},
		{Pclass: "3", Passengers: 491, LoadedAt: time.Now()},
	}))

	rows, err := svc.ClassCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "1", rows[0].Pclass)

	hasResults, err = svc.HasResults(context.Background())
	require.NoError(t, err)
	assert.True(t, hasResults)
}

func TestHealthServiceCheck(t *testing.T) {
	dir := t.TempDir()
	store, err := warehouse.Open(filepath.Join(dir, "warehouse.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewHealthService("1.0.0", "", store, nil, nil, testLogger())

	status := svc.Check(context.Background())
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.0.0", status.Version)
	assert.Contains(t, status.Services, "warehouse")

	assert.NoError(t, svc.Ready(context.Background()))

	version := svc.Version()
	assert.Equal(t, "1.0.0", version["version"])
	assert.NotEmpty(t, version["go_version"])
}
