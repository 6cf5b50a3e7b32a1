package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalTargetExists(t *testing.T) {
	dir := t.TempDir()

	target := NewLocalTarget(filepath.Join(dir, "out.csv"))
	assert.False(t, target.Exists())

	require.NoError(t, os.WriteFile(target.Path(), []byte("a,b\n"), 0644))
	assert.True(t, target.Exists())
}

func TestLocalTargetDirectoryDoesNotCount(t *testing.T) {
	dir := t.TempDir()

	target := NewLocalTarget(dir)
	assert.False(t, target.Exists())
}

func TestLocalTargetTempPath(t *testing.T) {
	target := NewLocalTarget(filepath.Join("data", "raw", "titanic.csv"))

	tempPath := target.TempPath()
	assert.Equal(t, filepath.Join("data", "raw"), filepath.Dir(tempPath))
	assert.Equal(t, ".titanic.csv.tmp", filepath.Base(tempPath))
}

func TestTaskStateTransitions(t *testing.T) {
	state := NewTaskState("extract", "Extract dataset")
	assert.Equal(t, TaskStatusPending, state.GetStatus())

	state.Start()
	assert.Equal(t, TaskStatusActive, state.GetStatus())
	assert.False(t, state.StartTime.IsZero())

	state.UpdateProgress(50, "halfway")
	assert.Equal(t, float64(50), state.Progress)
	assert.Equal(t, "halfway", state.Message)

	state.Complete()
	assert.Equal(t, TaskStatusCompleted, state.GetStatus())
	assert.Equal(t, float64(100), state.Progress)
	assert.GreaterOrEqual(t, state.Duration(), time.Duration(0))
}

func TestTaskStateFail(t *testing.T) {
	state := NewTaskState("load", "Load warehouse")
	state.Start()

	cause := errors.New("disk full")
	state.Fail(cause)

	assert.Equal(t, TaskStatusFailed, state.GetStatus())
	assert.Equal(t, cause, state.Error)
}

func TestTaskStateSkip(t *testing.T) {
	state := NewTaskState("extract", "Extract dataset")
	state.Skip("output already exists")

	assert.Equal(t, TaskStatusSkipped, state.GetStatus())
	assert.Equal(t, "output already exists", state.Message)
}

func TestIsComplete(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "result.csv")

	task := &fileTask{
		BaseTask: NewBaseTask("t", "T", nil),
		out:      NewLocalTarget(out),
	}

	assert.False(t, IsComplete(task))

	require.NoError(t, os.WriteFile(out, []byte("x"), 0644))
	assert.True(t, IsComplete(task))
}

// fileTask is a test task with a configurable body and file output.
type fileTask struct {
	BaseTask
	out  *LocalTarget
	body func(ctx context.Context, state *RunState) error
}

func (t *fileTask) Output() Target { return t.out }

func (t *fileTask) Execute(ctx context.Context, state *RunState) error {
	if t.body != nil {
		return t.body(ctx, state)
	}
	return os.WriteFile(t.out.Path(), []byte(t.ID()), 0644)
}
