package etl

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
)

func writeStagingFile(t *testing.T, paths *config.Paths, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(paths.StagingFile(StagingFileName), []byte(content), 0644))
}

func openTestStore(t *testing.T, paths *config.Paths) *warehouse.Store {
	t.Helper()
	store, err := warehouse.Open(paths.Warehouse, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestLoadInsertsClassCounts(t *testing.T) {
	paths := testPaths(t)
	writeStagingFile(t, paths, "pclass,passengers\n1,2\n2,1\n3,3\n")

	store := openTestStore(t, paths)
	task := NewLoadTask(store, paths, testLogger())

	state := newRunState(task)
	require.NoError(t, task.Execute(context.Background(), state))

	assert.True(t, task.Output().Exists())

	rows, err := store.ClassCounts(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "1", rows[0].Pclass)
	assert.Equal(t, 2, rows[0].Passengers)
	assert.Equal(t, "3", rows[2].Pclass)
	assert.Equal(t, 3, rows[2].Passengers)

	loaded, ok := state.GetContext("rows_loaded")
	require.True(t, ok)
	assert.Equal(t, 3, loaded)
}

func TestLoadIsIdempotent(t *testing.T) {
	paths := testPaths(t)
	writeStagingFile(t, paths, "pclass,passengers\n1,2\n3,3\n")

	store := openTestStore(t, paths)
	task := NewLoadTask(store, paths, testLogger())

	require.NoError(t, task.Execute(context.Background(), newRunState(task)))
	require.NoError(t, task.Execute(context.Background(), newRunState(task)))

	count, err := store.CountRows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestLoadRejectsBadCounts(t *testing.T) {
	paths := testPaths(t)
	writeStagingFile(t, paths, "pclass,passengers\n1,many\n")

	store := openTestStore(t, paths)
	task := NewLoadTask(store, paths, testLogger())

	err := task.Execute(context.Background(), newRunState(task))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid passenger count")
	assert.False(t, task.Output().Exists())

	count, err := store.CountRows(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLoadMissingStagingFile(t *testing.T) {
	paths := testPaths(t)

	store := openTestStore(t, paths)
	task := NewLoadTask(store, paths, testLogger())

	err := task.Execute(context.Background(), newRunState(task))
	require.Error(t, err)
	assert.False(t, task.Output().Exists())
}
