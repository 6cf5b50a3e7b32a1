package etl

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/frame"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
)

func writeRawDataset(t *testing.T, paths *config.Paths, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(paths.RawFile(RawFileName), []byte(content), 0644))
}

func TestTransformAggregatesByClass(t *testing.T) {
	paths := testPaths(t)
	writeRawDataset(t, paths, passengerCSV)

	task := NewTransformTask(config.Default().Dataset, paths, testLogger())
	state := newRunState(task)

	require.NoError(t, task.Execute(context.Background(), state))
	require.True(t, task.Output().Exists())

	df, err := frame.ReadCSVFile(task.Output().Path())
	require.NoError(t, err)

	assert.Equal(t, []string{ColumnClass, ColumnPassengers}, df.Headers())
	require.Equal(t, 3, df.NumRows())

	classes, err := df.Column(ColumnClass)
	require.NoError(t, err)
	counts, err := df.Column(ColumnPassengers)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2", "3"}, classes)
	assert.Equal(t, []string{"2", "1", "3"}, counts)
}

func TestTransformMissingInput(t *testing.T) {
	paths := testPaths(t)

	task := NewTransformTask(config.Default().Dataset, paths, testLogger())
	err := task.Execute(context.Background(), newRunState(task))

	require.Error(t, err)
	assert.False(t, task.Output().Exists())
}

func TestTransformMissingGroupColumn(t *testing.T) {
	paths := testPaths(t)
	writeRawDataset(t, paths, "Name,Age\nAlice,30\n")

	task := NewTransformTask(config.Default().Dataset, paths, testLogger())
	err := task.Execute(context.Background(), newRunState(task))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pclass")
}

func TestTransformRequiresExtract(t *testing.T) {
	paths := testPaths(t)
	task := NewTransformTask(config.Default().Dataset, paths, testLogger())

	assert.Equal(t, []string{pipeline.TaskIDExtract}, task.Requires())
}
