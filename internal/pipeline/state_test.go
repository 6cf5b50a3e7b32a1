package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStateLifecycle(t *testing.T) {
	state := NewRunState("run-1")
	assert.Equal(t, RunStatusPending, state.GetStatus())

	state.Start()
	assert.Equal(t, RunStatusRunning, state.GetStatus())

	state.Complete()
	assert.Equal(t, RunStatusCompleted, state.GetStatus())
	assert.True(t, state.IsComplete())
}

func TestRunStateFail(t *testing.T) {
	state := NewRunState("run-1")
	state.Start()

	cause := errors.New("extract failed")
	state.Fail(cause)

	assert.Equal(t, RunStatusFailed, state.GetStatus())
	assert.Equal(t, cause, state.Error)
	assert.True(t, state.IsComplete())
}

func TestRunStateTaskTracking(t *testing.T) {
	state := NewRunState("run-1")

	extract := NewTaskState("extract", "Extract")
	transform := NewTaskState("transform", "Transform")
	state.SetTask("extract", extract)
	state.SetTask("transform", transform)

	extract.Start()
	extract.Complete()
	transform.Start()
	transform.Fail(errors.New("bad header"))

	completed := state.GetCompletedTasks()
	require.Len(t, completed, 1)
	assert.Equal(t, "extract", completed[0].ID)

	failed := state.GetFailedTasks()
	require.Len(t, failed, 1)
	assert.Equal(t, "transform", failed[0].ID)

	assert.True(t, state.HasFailures())
	assert.Nil(t, state.GetTask("missing"))
}

func TestRunStateContextAndConfig(t *testing.T) {
	state := NewRunState("run-1")

	state.SetContext("rows_fetched", 891)
	v, ok := state.GetContext("rows_fetched")
	require.True(t, ok)
	assert.Equal(t, 891, v)

	_, ok = state.GetContext("missing")
	assert.False(t, ok)

	state.SetConfig("dataset_url", "https://example.com/titanic.csv")
	cfg, ok := state.GetConfig("dataset_url")
	require.True(t, ok)
	assert.Equal(t, "https://example.com/titanic.csv", cfg)
}

func TestRunStateClone(t *testing.T) {
	state := NewRunState("run-1")
	state.Start()

	extract := NewTaskState("extract", "Extract")
	extract.Start()
	extract.Complete()
	state.SetTask("extract", extract)

	clone := state.Clone()
	assert.Equal(t, state.ID, clone.ID)
	assert.Equal(t, RunStatusRunning, clone.GetStatus())

	// Mutating the clone must not affect the original
	clone.GetTask("extract").Fail(errors.New("oops"))
	assert.Equal(t, TaskStatusCompleted, state.GetTask("extract").GetStatus())
}
