package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForJob(t *testing.T, q *JobQueue, id string, timeout time.Duration) *Job {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := q.GetJob(id)
		require.NoError(t, err)
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed || job.Status == JobStatusCancelled {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish within %s", id, timeout)
	return nil
}

func TestJobQueueProcessesJob(t *testing.T) {
	dir := t.TempDir()

	extract := &fileTask{
		BaseTask: NewBaseTask("extract", "Extract", nil),
		out:      NewLocalTarget(filepath.Join(dir, "raw.csv")),
	}

	runner, _ := newTestRunner(t, extract)
	store := NewMemoryJobStore()
	queue := NewJobQueue(1, store, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop(time.Second)

	job := &Job{ID: "job-1", RunID: "run-1"}
	require.NoError(t, queue.Enqueue(job))

	finished := waitForJob(t, queue, "job-1", 5*time.Second)
	assert.Equal(t, JobStatusCompleted, finished.Status)
	assert.Equal(t, 100, finished.Progress)
	assert.True(t, extract.out.Exists())

	manifest, err := store.GetManifestByRunID("run-1")
	require.NoError(t, err)
	assert.Equal(t, "completed", manifest.Status)
	assert.True(t, manifest.IsTaskCompleted("extract"))
}

func TestJobQueueRecordsFailure(t *testing.T) {
	dir := t.TempDir()

	extract := &fileTask{
		BaseTask: NewBaseTask("extract", "Extract", nil),
		out:      NewLocalTarget(filepath.Join(dir, "raw.csv")),
		body: func(ctx context.Context, state *RunState) error {
			return errors.New("host unreachable")
		},
	}

	runner, _ := newTestRunner(t, extract)
	store := NewMemoryJobStore()
	queue := NewJobQueue(1, store, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop(time.Second)

	job := &Job{ID: "job-1", RunID: "run-1"}
	require.NoError(t, queue.Enqueue(job))

	finished := waitForJob(t, queue, "job-1", 5*time.Second)
	assert.Equal(t, JobStatusFailed, finished.Status)
	assert.Contains(t, finished.Error, "host unreachable")
}

func TestJobQueueRecoversFromPanic(t *testing.T) {
	dir := t.TempDir()

	extract := &fileTask{
		BaseTask: NewBaseTask("extract", "Extract", nil),
		out:      NewLocalTarget(filepath.Join(dir, "raw.csv")),
		body: func(ctx context.Context, state *RunState) error {
			panic("nil map write")
		},
	}

	runner, _ := newTestRunner(t, extract)
	store := NewMemoryJobStore()
	queue := NewJobQueue(1, store, runner, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	defer queue.Stop(time.Second)

	require.NoError(t, queue.Enqueue(&Job{ID: "job-1", RunID: "run-1"}))

	finished := waitForJob(t, queue, "job-1", 5*time.Second)
	assert.Equal(t, JobStatusFailed, finished.Status)
	assert.Contains(t, finished.Error, "panicked")

	// Queue still processes subsequent jobs
	ok := &fileTask{
		BaseTask: NewBaseTask("transform", "Transform", nil),
		out:      NewLocalTarget(filepath.Join(dir, "staging.csv")),
	}
	require.NoError(t, runner.registry.Register(ok))

	require.NoError(t, queue.Enqueue(&Job{ID: "job-2", RunID: "run-2", Task: "transform"}))
	finished = waitForJob(t, queue, "job-2", 5*time.Second)
	assert.Equal(t, JobStatusCompleted, finished.Status)
	assert.True(t, ok.out.Exists())
}

func TestJobQueueStats(t *testing.T) {
	runner, _ := newTestRunner(t)
	queue := NewJobQueue(2, NewMemoryJobStore(), runner, testLogger())

	stats := queue.GetQueueStats()
	assert.Equal(t, 2, stats["workers"])
	assert.Equal(t, 0, stats["active_jobs"])
}

func TestMemoryJobStoreCleanup(t *testing.T) {
	store := NewMemoryJobStore()

	old := &Job{ID: "old", Status: JobStatusCompleted, CreatedAt: time.Now().Add(-2 * time.Hour)}
	recent := &Job{ID: "recent", Status: JobStatusCompleted, CreatedAt: time.Now()}
	running := &Job{ID: "running", Status: JobStatusRunning, CreatedAt: time.Now().Add(-2 * time.Hour)}

	require.NoError(t, store.CreateJob(old))
	require.NoError(t, store.CreateJob(recent))
	require.NoError(t, store.CreateJob(running))

	deleted, err := store.CleanupOldJobs(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.GetJob("old")
	assert.Error(t, err)
	_, err = store.GetJob("recent")
	assert.NoError(t, err)
	_, err = store.GetJob("running")
	assert.NoError(t, err)
}

func TestMemoryJobStoreListOrdering(t *testing.T) {
	store := NewMemoryJobStore()

	base := time.Now()
	require.NoError(t, store.CreateJob(&Job{ID: "oldest", CreatedAt: base.Add(-2 * time.Minute)}))
	require.NoError(t, store.CreateJob(&Job{ID: "middle", CreatedAt: base.Add(-time.Minute)}))
	require.NoError(t, store.CreateJob(&Job{ID: "newest", CreatedAt: base}))

	jobs, err := store.ListJobs(JobFilter{})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "newest", jobs[0].ID)
	assert.Equal(t, "middle", jobs[1].ID)
	assert.Equal(t, "oldest", jobs[2].ID)

	// The limit keeps the newest jobs, not an arbitrary map subset.
	limited, err := store.ListJobs(JobFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, "newest", limited[0].ID)
	assert.Equal(t, "middle", limited[1].ID)
}

func TestMemoryJobStoreStatusCounts(t *testing.T) {
	store := NewMemoryJobStore()

	require.NoError(t, store.CreateJob(&Job{ID: "a", Status: JobStatusPending}))
	require.NoError(t, store.CreateJob(&Job{ID: "b", Status: JobStatusCompleted}))
	require.NoError(t, store.CreateJob(&Job{ID: "c", Status: JobStatusCompleted}))

	counts := store.StatusCounts()
	assert.Equal(t, 1, counts[JobStatusPending])
	assert.Equal(t, 2, counts[JobStatusCompleted])
	assert.Equal(t, 0, counts[JobStatusFailed])
}

func TestMemoryJobStoreCleanupDropsOrphanedManifests(t *testing.T) {
	store := NewMemoryJobStore()

	old := &Job{ID: "old", RunID: "run-old", Status: JobStatusCompleted, CreatedAt: time.Now().Add(-2 * time.Hour)}
	running := &Job{ID: "live", RunID: "run-live", Status: JobStatusRunning, CreatedAt: time.Now().Add(-2 * time.Hour)}
	require.NoError(t, store.CreateJob(old))
	require.NoError(t, store.CreateJob(running))
	require.NoError(t, store.CreateManifest(NewRunManifest("run-old", "")))
	require.NoError(t, store.CreateManifest(NewRunManifest("run-live", "")))

	deleted, err := store.CleanupOldJobs(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	_, err = store.GetManifestByRunID("run-old")
	assert.Error(t, err)
	_, err = store.GetManifestByRunID("run-live")
	assert.NoError(t, err)
}

func TestMemoryJobStoreFilter(t *testing.T) {
	store := NewMemoryJobStore()

	require.NoError(t, store.CreateJob(&Job{ID: "a", RunID: "run-1", Status: JobStatusPending, CreatedAt: time.Now()}))
	require.NoError(t, store.CreateJob(&Job{ID: "b", RunID: "run-1", Status: JobStatusCompleted, CreatedAt: time.Now()}))
	require.NoError(t, store.CreateJob(&Job{ID: "c", RunID: "run-2", Status: JobStatusPending, CreatedAt: time.Now()}))

	pending, err := store.ListJobs(JobFilter{Status: JobStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	run1, err := store.ListJobs(JobFilter{RunID: "run-1"})
	require.NoError(t, err)
	assert.Len(t, run1, 2)

	limited, err := store.ListJobs(JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
