// Package services holds the application services between the HTTP
// transport and the pipeline, warehouse and websocket packages.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
)

// RunService starts, inspects and cancels pipeline runs
type RunService struct {
	runner  *pipeline.Runner
	queue   *pipeline.JobQueue
	metrics *infrastructure.BusinessMetrics
	logger  *slog.Logger
}

// NewRunService creates a run service
func NewRunService(runner *pipeline.Runner, queue *pipeline.JobQueue, metrics *infrastructure.BusinessMetrics, logger *slog.Logger) *RunService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunService{
		runner:  runner,
		queue:   queue,
		metrics: metrics,
		logger:  logger.With(slog.String("service", "run")),
	}
}

// StartRun enqueues a run for async execution and returns the job
func (s *RunService) StartRun(ctx context.Context, req pipeline.RunRequest) (*pipeline.Job, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	job := &pipeline.Job{
		ID:      uuid.New().String(),
		RunID:   req.ID,
		Task:    req.Task,
		Request: &req,
	}

	if err := s.queue.Enqueue(job); err != nil {
		s.logger.ErrorContext(ctx, "failed to enqueue run",
			slog.String("run_id", req.ID),
			slog.String("error", err.Error()))
		return nil, err
	}

	s.logger.InfoContext(ctx, "run enqueued",
		slog.String("run_id", req.ID),
		slog.String("job_id", job.ID),
		slog.String("task", req.Task),
		slog.Bool("force", req.Force))
	return job, nil
}

// ExecuteRun runs the pipeline synchronously. Used by the CLI.
func (s *RunService) ExecuteRun(ctx context.Context, req pipeline.RunRequest) (*pipeline.RunResponse, error) {
	start := time.Now()
	resp, err := s.runner.Execute(ctx, req)

	if s.metrics != nil {
		runID := req.ID
		if resp != nil {
			runID = resp.ID
		}
		infrastructure.RecordRunMetrics(ctx, s.metrics, runID, time.Since(start), err == nil, err)
	}

	return resp, err
}

// GetRun returns a snapshot of a run
func (s *RunService) GetRun(ctx context.Context, id string) (*pipeline.RunState, error) {
	return s.runner.GetRun(id)
}

// ListRuns returns snapshots of all known runs
func (s *RunService) ListRuns(ctx context.Context) []*pipeline.RunState {
	return s.runner.ListRuns()
}

// StopRun cancels a running pipeline run
func (s *RunService) StopRun(ctx context.Context, id string) error {
	err := s.runner.CancelRun(id)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to stop run",
			slog.String("run_id", id),
			slog.String("error", err.Error()))
		return err
	}

	s.logger.InfoContext(ctx, "run cancellation requested", slog.String("run_id", id))
	return nil
}

// GetJob returns a job by ID
func (s *RunService) GetJob(ctx context.Context, id string) (*pipeline.Job, error) {
	return s.queue.GetJob(id)
}

// ListJobs returns jobs matching the filter
func (s *RunService) ListJobs(ctx context.Context, filter pipeline.JobFilter) ([]*pipeline.Job, error) {
	return s.queue.ListJobs(filter)
}

// QueueStats returns job queue statistics
func (s *RunService) QueueStats() map[string]interface{} {
	return s.queue.GetQueueStats()
}
