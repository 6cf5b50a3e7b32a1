package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifestTaskLifecycle(t *testing.T) {
	m := NewRunManifest("run-1", "https://example.com/titanic.csv")

	m.RecordTaskStart("extract", "Extract")
	assert.False(t, m.IsTaskCompleted("extract"))

	m.RecordTaskCompletion("extract", []string{"raw_csv"}, map[string]interface{}{"rows": 891})
	assert.True(t, m.IsTaskCompleted("extract"))

	m.RecordTaskStart("transform", "Transform")
	m.RecordTaskFailure("transform", errors.New("bad header"))
	assert.False(t, m.IsTaskCompleted("transform"))
	assert.Equal(t, "failed", m.Status)
	assert.Contains(t, m.Error, "transform")
}

func TestManifestTaskRetryReusesEntry(t *testing.T) {
	m := NewRunManifest("run-1", "")

	m.RecordTaskStart("extract", "Extract")
	m.RecordTaskFailure("extract", errors.New("timeout"))
	m.RecordTaskStart("extract", "Extract")
	m.RecordTaskCompletion("extract", nil, nil)

	assert.Len(t, m.CompletedTasks, 1)
	assert.True(t, m.IsTaskCompleted("extract"))
}

func TestManifestIDsDistinctWithinSameSecond(t *testing.T) {
	first := NewRunManifest("run-1", "")
	second := NewRunManifest("run-2", "")

	assert.NotEqual(t, first.ID, second.ID)

	store := NewMemoryJobStore()
	require.NoError(t, store.CreateManifest(first))
	require.NoError(t, store.CreateManifest(second))
}

func TestManifestArtifacts(t *testing.T) {
	m := NewRunManifest("run-1", "")

	assert.False(t, m.HasArtifact("raw_csv"))

	m.AddArtifact("raw_csv", &ArtifactInfo{
		Type:      "raw_csv",
		Location:  "data/raw",
		CreatedBy: "extract",
	})

	assert.True(t, m.HasArtifact("raw_csv"))
	info, ok := m.GetArtifact("raw_csv")
	require.True(t, ok)
	assert.Equal(t, "extract", info.CreatedBy)
	assert.False(t, info.CreatedAt.IsZero())
}

func TestManifestScanDataDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "titanic.csv"), []byte("a,b\n1,2\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))

	m := NewRunManifest("run-1", "")
	require.NoError(t, m.ScanDataDirectory("raw_csv", dir, "*.csv"))

	info, ok := m.GetArtifact("raw_csv")
	require.True(t, ok)
	assert.Equal(t, 1, info.FileCount)
	assert.Equal(t, []string{"titanic.csv"}, info.Files)
	assert.Equal(t, int64(8), info.TotalSize)
}

func TestManifestScanMissingDirectory(t *testing.T) {
	m := NewRunManifest("run-1", "")
	err := m.ScanDataDirectory("raw_csv", filepath.Join(t.TempDir(), "nope"), "*.csv")
	assert.Error(t, err)
}

func TestManifestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")

	m := NewRunManifest("run-1", "https://example.com/titanic.csv")
	m.RecordTaskStart("extract", "Extract")
	m.RecordTaskCompletion("extract", []string{"raw_csv"}, nil)
	m.SetStatus("completed")

	require.NoError(t, m.SaveToFile(path))

	loaded, err := LoadManifestFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "run-1", loaded.RunID)
	assert.Equal(t, "completed", loaded.Status)
	assert.True(t, loaded.IsTaskCompleted("extract"))
}

func TestManifestGetProgress(t *testing.T) {
	m := NewRunManifest("run-1", "")
	assert.Equal(t, 0, m.GetProgress(4))

	m.RecordTaskStart("extract", "Extract")
	m.RecordTaskCompletion("extract", nil, nil)
	m.RecordTaskStart("transform", "Transform")
	m.RecordTaskCompletion("transform", nil, nil)

	assert.Equal(t, 50, m.GetProgress(4))
	assert.Equal(t, 0, m.GetProgress(0))
}
