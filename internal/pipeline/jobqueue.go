package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
)

// JobStatus represents the status of a job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job represents an async pipeline run job
type Job struct {
	ID          string                 `json:"id"`
	RunID       string                 `json:"run_id"`
	Task        string                 `json:"task,omitempty"`
	Status      JobStatus              `json:"status"`
	Progress    int                    `json:"progress"`
	Message     string                 `json:"message,omitempty"`
	Error       string                 `json:"error,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	Request     *RunRequest            `json:"request,omitempty"`
}

// JobStore interface for job persistence
type JobStore interface {
	// Job operations
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	DeleteJob(id string) error

	// Manifest operations
	CreateManifest(manifest *RunManifest) error
	GetManifest(id string) (*RunManifest, error)
	UpdateManifest(manifest *RunManifest) error
	GetManifestByRunID(runID string) (*RunManifest, error)

	// StatusCounts reports stored jobs per status for queue stats
	StatusCounts() map[JobStatus]int
}

// JobFilter for querying jobs
type JobFilter struct {
	Status JobStatus
	RunID  string
	Task   string
	Since  time.Time
	Limit  int
}

// ArtifactScan describes a directory the queue scans into the manifest
// after a run finishes.
type ArtifactScan struct {
	Type     string
	Location string
	Pattern  string
}

// JobQueue manages async run execution
type JobQueue struct {
	mu       sync.RWMutex
	jobs     chan *Job
	workers  int
	wg       sync.WaitGroup
	store    JobStore
	runner   *Runner
	logger   *slog.Logger
	shutdown chan struct{}
	active   map[string]*Job // currently executing jobs
	scans    []ArtifactScan
	metrics  *infrastructure.BusinessMetrics
}

// NewJobQueue creates a new job queue
func NewJobQueue(workers int, store JobStore, runner *Runner, logger *slog.Logger) *JobQueue {
	if workers <= 0 {
		workers = 1
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &JobQueue{
		jobs:     make(chan *Job, workers*2),
		workers:  workers,
		store:    store,
		runner:   runner,
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		active:   make(map[string]*Job),
	}
}

// SetArtifactScans configures the directories scanned into manifests
func (q *JobQueue) SetArtifactScans(scans []ArtifactScan) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.scans = scans
}

// SetMetrics attaches the business metrics instrument set. A nil set
// disables recording.
func (q *JobQueue) SetMetrics(metrics *infrastructure.BusinessMetrics) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metrics = metrics
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.workers))

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	// Re-queue jobs that were pending or running when the server stopped
	go q.recoverJobs(ctx)
}

// Stop gracefully shuts down the job queue
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")

	close(q.shutdown)

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Enqueue adds a job to the queue
func (q *JobQueue) Enqueue(job *Job) error {
	job.Status = JobStatusPending
	job.CreatedAt = time.Now()

	if err := q.store.CreateJob(job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	select {
	case q.jobs <- job:
		q.logger.Info("job enqueued",
			slog.String("job_id", job.ID),
			slog.String("run_id", job.RunID),
			slog.String("task", job.Task))
		return nil
	default:
		job.Status = JobStatusFailed
		job.Error = "job queue is full"
		q.store.UpdateJob(job)
		return fmt.Errorf("job queue is full")
	}
}

// GetJob retrieves a job by ID
func (q *JobQueue) GetJob(id string) (*Job, error) {
	q.mu.RLock()
	if activeJob, ok := q.active[id]; ok {
		q.mu.RUnlock()
		return activeJob, nil
	}
	q.mu.RUnlock()

	return q.store.GetJob(id)
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	job, err := q.GetJob(id)
	if err != nil {
		return err
	}

	if job.Status != JobStatusRunning && job.Status != JobStatusPending {
		return fmt.Errorf("job %s cannot be cancelled (status: %s)", id, job.Status)
	}

	if job.Status == JobStatusRunning {
		if err := q.runner.CancelRun(job.RunID); err != nil && err != ErrRunNotFound {
			return err
		}
	}

	job.Status = JobStatusCancelled
	now := time.Now()
	job.CompletedAt = &now

	return q.store.UpdateJob(job)
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	return q.store.ListJobs(filter)
}

// worker processes jobs from the queue
func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case job := <-q.jobs:
			q.processJob(ctx, job, logger)
		}
	}
}

// processJob executes a single job
func (q *JobQueue) processJob(ctx context.Context, job *Job, logger *slog.Logger) {
	logger = logger.With(
		slog.String("job_id", job.ID),
		slog.String("run_id", job.RunID),
		slog.String("task", job.Task),
	)

	logger.Info("processing job started")

	q.mu.Lock()
	q.active[job.ID] = job
	q.mu.Unlock()

	defer func() {
		// Recover from panics so one bad job cannot take the server down
		if r := recover(); r != nil {
			logger.Error("job processing panicked",
				slog.Any("panic", r),
				slog.String("job_id", job.ID))

			job.Status = JobStatusFailed
			job.Error = fmt.Sprintf("job processing panicked: %v", r)
			job.Message = "Internal error occurred"
			completedAt := time.Now()
			job.CompletedAt = &completedAt

			if err := q.store.UpdateJob(job); err != nil {
				logger.Error("failed to update job after panic", slog.String("error", err.Error()))
			}
		}

		q.mu.Lock()
		delete(q.active, job.ID)
		q.mu.Unlock()
	}()

	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	job.Progress = 0
	job.Message = "Job started"

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job status", slog.String("error", err.Error()))
	}

	manifest, err := q.getOrCreateManifest(job)
	if err != nil {
		q.handleJobError(job, err, logger)
		return
	}
	manifest.SetStatus("running")
	q.store.UpdateManifest(manifest)

	req := RunRequest{ID: job.RunID, Task: job.Task}
	if job.Request != nil {
		req = *job.Request
		req.ID = job.RunID
	}

	started := time.Now()
	resp, err := q.runner.Execute(ctx, req)
	infrastructure.RecordRunMetrics(ctx, q.metrics, job.RunID, time.Since(started), err == nil, err)
	if resp != nil {
		q.recordTaskHistory(manifest, resp)
	}
	if err != nil {
		manifest.RecordTaskFailure(job.Task, err)
		q.store.UpdateManifest(manifest)
		q.handleJobError(job, err, logger)
		return
	}

	// Scan produced artifacts into the manifest
	q.scanArtifacts(manifest, logger)
	manifest.SetStatus("completed")
	q.store.UpdateManifest(manifest)

	job.Status = JobStatusCompleted
	job.Progress = 100
	job.Message = "Job completed successfully"
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job completion", slog.String("error", err.Error()))
	}

	logger.Info("processing job completed")
}

// scanArtifacts records the contents of every configured artifact
// directory into the manifest. The directories are independent, so the
// scans run concurrently; a missing directory is not an error.
func (q *JobQueue) scanArtifacts(manifest *RunManifest, logger *slog.Logger) {
	q.mu.RLock()
	scans := q.scans
	q.mu.RUnlock()

	var g errgroup.Group
	for _, scan := range scans {
		scan := scan
		g.Go(func() error {
			if err := manifest.ScanDataDirectory(scan.Type, scan.Location, scan.Pattern); err != nil {
				logger.Debug("artifact scan skipped",
					slog.String("type", scan.Type),
					slog.String("error", err.Error()))
			}
			return nil
		})
	}
	g.Wait()
}

// recordTaskHistory mirrors the run's task states into the manifest
func (q *JobQueue) recordTaskHistory(manifest *RunManifest, resp *RunResponse) {
	for id, taskState := range resp.Tasks {
		manifest.RecordTaskStart(id, taskState.Name)
		switch taskState.GetStatus() {
		case TaskStatusCompleted, TaskStatusSkipped:
			manifest.RecordTaskCompletion(id, nil, taskState.Metadata)
		case TaskStatusFailed:
			if taskState.Error != nil {
				manifest.RecordTaskFailure(id, taskState.Error)
			}
		}
	}
	q.store.UpdateManifest(manifest)
}

// handleJobError handles job execution errors
func (q *JobQueue) handleJobError(job *Job, err error, logger *slog.Logger) {
	logger.Error("job failed", slog.String("error", err.Error()))

	job.Status = JobStatusFailed
	job.Error = err.Error()
	job.Message = "Job failed"
	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job error", slog.String("error", err.Error()))
	}
}

// getOrCreateManifest gets the existing manifest for the run or creates one
func (q *JobQueue) getOrCreateManifest(job *Job) (*RunManifest, error) {
	manifest, err := q.store.GetManifestByRunID(job.RunID)
	if err == nil && manifest != nil {
		return manifest, nil
	}

	datasetURL := ""
	if job.Request != nil {
		if url, ok := job.Request.Parameters["dataset_url"].(string); ok {
			datasetURL = url
		}
	}

	manifest = NewRunManifest(job.RunID, datasetURL)

	// Populate artifacts left behind by earlier runs so resumed runs
	// can see what already exists
	q.scanArtifacts(manifest, q.logger)

	if err := q.store.CreateManifest(manifest); err != nil {
		return nil, fmt.Errorf("failed to create manifest: %w", err)
	}

	return manifest, nil
}

// recoverJobs re-queues jobs that were pending or running at shutdown
func (q *JobQueue) recoverJobs(ctx context.Context) {
	q.logger.Info("recovering pending and running jobs")

	jobs, err := q.store.ListJobs(JobFilter{Status: JobStatusRunning})
	if err != nil {
		q.logger.Error("failed to recover running jobs", slog.String("error", err.Error()))
		return
	}

	pendingJobs, err := q.store.ListJobs(JobFilter{Status: JobStatusPending})
	if err != nil {
		q.logger.Error("failed to recover pending jobs", slog.String("error", err.Error()))
	} else {
		jobs = append(jobs, pendingJobs...)
	}

	for _, job := range jobs {
		if job.Status == JobStatusRunning {
			job.Status = JobStatusPending
			job.StartedAt = nil
			job.Progress = 0
			q.store.UpdateJob(job)
		}

		select {
		case q.jobs <- job:
			q.logger.Info("recovered job",
				slog.String("job_id", job.ID),
				slog.String("status", string(job.Status)))
		default:
			q.logger.Warn("could not recover job - queue full",
				slog.String("job_id", job.ID))
		}
	}
}

// GetQueueStats returns queue statistics
func (q *JobQueue) GetQueueStats() map[string]interface{} {
	q.mu.RLock()
	activeCount := len(q.active)
	q.mu.RUnlock()

	stats := map[string]interface{}{
		"workers":     q.workers,
		"queue_size":  len(q.jobs),
		"queue_cap":   cap(q.jobs),
		"active_jobs": activeCount,
	}
	for status, count := range q.store.StatusCounts() {
		stats[string(status)] = count
	}
	return stats
}
