package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
)

// Runner executes pipeline runs, resolving task prerequisites and
// skipping tasks whose output already exists.
type Runner struct {
	registry  *Registry
	config    *Config
	publisher ProgressPublisher
	logger    *slog.Logger
	metrics   *infrastructure.BusinessMetrics

	mu      sync.RWMutex
	runs    map[string]*RunState
	cancels map[string]context.CancelFunc
}

// NewRunner creates a runner over the given registry
func NewRunner(registry *Registry, config *Config, publisher ProgressPublisher, logger *slog.Logger) *Runner {
	if config == nil {
		config = NewConfig()
	}
	if publisher == nil {
		publisher = NoopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		registry:  registry,
		config:    config,
		publisher: publisher,
		logger:    logger,
		runs:      make(map[string]*RunState),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// SetMetrics attaches the business metrics instrument set. A nil set
// disables recording.
func (r *Runner) SetMetrics(metrics *infrastructure.BusinessMetrics) {
	r.metrics = metrics
}

// Execute runs the pipeline described by the request. When req.Task is
// set, only that task and its prerequisites are considered; otherwise
// every registered task runs in dependency order. Tasks whose output
// target already exists are skipped unless req.Force is set.
func (r *Runner) Execute(ctx context.Context, req RunRequest) (*RunResponse, error) {
	if req.ID == "" {
		req.ID = uuid.New().String()
	}

	tasks, err := r.resolveTasks(req.Task)
	if err != nil {
		return nil, err
	}

	state := NewRunState(req.ID)
	for k, v := range req.Parameters {
		state.SetConfig(k, v)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	r.runs[req.ID] = state
	r.cancels[req.ID] = cancel
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.cancels, req.ID)
		r.mu.Unlock()
	}()

	// Seed task states up front so clients can see the full plan
	for _, task := range tasks {
		state.SetTask(task.ID(), NewTaskState(task.ID(), task.Name()))
	}

	state.Start()
	if r.metrics != nil {
		r.metrics.ActiveRuns.Add(ctx, 1)
		defer r.metrics.ActiveRuns.Add(ctx, -1)
	}
	r.publisher.PublishRunStatus(req.ID, RunStatusRunning)
	r.logger.InfoContext(ctx, "run started",
		slog.String("run_id", req.ID),
		slog.Int("tasks", len(tasks)),
		slog.Bool("force", req.Force))

	var runErr error
	for _, task := range tasks {
		taskState := state.GetTask(task.ID())

		if err := runCtx.Err(); err != nil {
			cancelErr := NewCancellationError(task.ID())
			taskState.Fail(cancelErr)
			state.Cancel()
			r.publisher.PublishRunStatus(req.ID, RunStatusCancelled)
			return r.createResponse(state), cancelErr
		}

		if !req.Force && IsComplete(task) {
			taskState.Skip("output already exists")
			if r.metrics != nil {
				r.metrics.TasksSkipped.Add(ctx, 1, metric.WithAttributes(
					attribute.String("task", task.ID())))
			}
			r.publisher.PublishTaskProgress(req.ID, task.ID(), 100, "output already exists")
			r.logger.InfoContext(ctx, "task skipped",
				slog.String("run_id", req.ID),
				slog.String("task", task.ID()),
				slog.String("output", task.Output().Path()))
			continue
		}

		if err := r.checkDependencies(task, state); err != nil {
			taskState.Fail(err)
			r.skipDependentTasks(task.ID(), state)
			if !r.config.ContinueOnError {
				runErr = err
				break
			}
			continue
		}

		if err := r.executeTask(runCtx, task, taskState, state); err != nil {
			r.skipDependentTasks(task.ID(), state)
			if !r.config.ContinueOnError {
				runErr = err
				break
			}
			continue
		}
	}

	if runErr != nil {
		if GetErrorType(runErr) == ErrorTypeCancellation {
			state.Cancel()
			r.publisher.PublishRunStatus(req.ID, RunStatusCancelled)
			r.logger.InfoContext(ctx, "run cancelled",
				slog.String("run_id", req.ID))
			return r.createResponse(state), runErr
		}
		state.Fail(runErr)
		r.publisher.PublishRunStatus(req.ID, RunStatusFailed)
		r.logger.ErrorContext(ctx, "run failed",
			slog.String("run_id", req.ID),
			slog.String("error", runErr.Error()))
	} else if state.HasFailures() {
		state.Fail(fmt.Errorf("one or more tasks failed"))
		r.publisher.PublishRunStatus(req.ID, RunStatusFailed)
	} else {
		state.Complete()
		r.publisher.PublishRunStatus(req.ID, RunStatusCompleted)
		r.logger.InfoContext(ctx, "run completed",
			slog.String("run_id", req.ID),
			slog.Duration("duration", state.Duration()))
	}

	r.recordDataMetrics(ctx, state)
	return r.createResponse(state), runErr
}

// recordDataMetrics publishes the data volumes tasks reported through
// the run context.
func (r *Runner) recordDataMetrics(ctx context.Context, state *RunState) {
	if r.metrics == nil {
		return
	}
	if n, ok := contextInt(state, ContextKeyRowsFetched); ok {
		r.metrics.RowsProcessed.Add(ctx, n)
	}
	if n, ok := contextInt(state, ContextKeyBytesFetched); ok {
		r.metrics.BytesFetched.Add(ctx, n)
	}
	if n, ok := contextInt(state, ContextKeyRowsLoaded); ok {
		r.metrics.RowsLoaded.Add(ctx, n)
	}
}

// contextInt reads a numeric run context value set by a task
func contextInt(state *RunState, key string) (int64, bool) {
	val, ok := state.GetContext(key)
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// resolveTasks returns the tasks to execute in dependency order
func (r *Runner) resolveTasks(taskID string) ([]Task, error) {
	ordered, err := r.registry.GetDependencyOrder()
	if err != nil {
		return nil, err
	}

	if taskID == "" {
		return ordered, nil
	}

	target, err := r.registry.Get(taskID)
	if err != nil {
		return nil, NewValidationError(taskID, "requested task is not registered")
	}

	// Collect the target's transitive prerequisites
	needed := map[string]bool{target.ID(): true}
	changed := true
	for changed {
		changed = false
		for _, task := range ordered {
			if !needed[task.ID()] {
				continue
			}
			for _, dep := range task.Requires() {
				if !needed[dep] {
					needed[dep] = true
					changed = true
				}
			}
		}
	}

	subset := make([]Task, 0, len(needed))
	for _, task := range ordered {
		if needed[task.ID()] {
			subset = append(subset, task)
		}
	}
	return subset, nil
}

// checkDependencies verifies that every prerequisite of the task has
// either completed in this run or left its output behind from an
// earlier run.
func (r *Runner) checkDependencies(task Task, state *RunState) error {
	for _, dep := range task.Requires() {
		depState := state.GetTask(dep)
		if depState != nil {
			status := depState.GetStatus()
			if status == TaskStatusCompleted || status == TaskStatusSkipped {
				continue
			}
		}

		depTask, err := r.registry.Get(dep)
		if err == nil && IsComplete(depTask) {
			continue
		}

		return NewDependencyError(task.ID(), dep, fmt.Sprintf("prerequisite %s has not produced its output", dep))
	}
	return nil
}

// executeTask runs a single task with timeout and retry handling
func (r *Runner) executeTask(ctx context.Context, task Task, taskState *TaskState, state *RunState) error {
	timeout := r.config.GetTaskTimeout(task.ID())

	taskState.Start()
	r.publisher.PublishTaskProgress(state.ID, task.ID(), 0, "started")
	r.logger.InfoContext(ctx, "task started",
		slog.String("run_id", state.ID),
		slog.String("task", task.ID()),
		slog.Duration("timeout", timeout))

	var lastErr error
	maxAttempts := 1
	if r.config.RetryConfig != nil {
		maxAttempts = r.config.RetryConfig.MaxAttempts
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		taskCtx, cancel := context.WithTimeout(ctx, timeout)
		err := task.Execute(taskCtx, state)
		cancel()

		if err == nil {
			taskState.Complete()
			infrastructure.RecordTaskMetrics(ctx, r.metrics, state.ID, task.ID(), taskState.Duration(), true)
			r.publisher.PublishTaskProgress(state.ID, task.ID(), 100, "completed")
			r.logger.InfoContext(ctx, "task completed",
				slog.String("run_id", state.ID),
				slog.String("task", task.ID()),
				slog.Duration("duration", taskState.Duration()),
				slog.Int("attempt", attempt))
			return nil
		}

		if taskCtx.Err() == context.DeadlineExceeded {
			err = NewTimeoutError(task.ID(), timeout.String())
		}
		lastErr = err

		if ctx.Err() != nil {
			lastErr = NewCancellationError(task.ID())
			break
		}

		if !IsRetryable(err) || attempt == maxAttempts {
			break
		}

		delay := r.calculateRetryDelay(attempt)
		r.logger.WarnContext(ctx, "task failed, retrying",
			slog.String("run_id", state.ID),
			slog.String("task", task.ID()),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
			slog.String("error", err.Error()))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			lastErr = NewCancellationError(task.ID())
			attempt = maxAttempts
		}
	}

	taskState.Fail(lastErr)
	infrastructure.RecordTaskMetrics(ctx, r.metrics, state.ID, task.ID(), taskState.Duration(), false)
	r.publisher.PublishTaskProgress(state.ID, task.ID(), 0, "failed")
	r.logger.ErrorContext(ctx, "task failed",
		slog.String("run_id", state.ID),
		slog.String("task", task.ID()),
		slog.String("error", lastErr.Error()))
	return lastErr
}

// calculateRetryDelay returns the backoff delay for the given attempt
func (r *Runner) calculateRetryDelay(attempt int) time.Duration {
	rc := r.config.RetryConfig
	if rc == nil {
		return time.Second
	}

	delay := rc.InitialDelay
	for i := 1; i < attempt; i++ {
		delay = time.Duration(float64(delay) * rc.Multiplier)
		if delay > rc.MaxDelay {
			return rc.MaxDelay
		}
	}
	return delay
}

// skipDependentTasks marks all tasks that depend on the failed task as skipped
func (r *Runner) skipDependentTasks(failedID string, state *RunState) {
	for _, dependent := range r.registry.GetDependents(failedID) {
		depState := state.GetTask(dependent)
		if depState == nil || depState.GetStatus() != TaskStatusPending {
			continue
		}
		depState.Skip(fmt.Sprintf("prerequisite %s failed", failedID))
		r.publisher.PublishTaskProgress(state.ID, dependent, 0, "skipped: prerequisite failed")
		r.skipDependentTasks(dependent, state)
	}
}

// createResponse builds a response snapshot from the run state
func (r *Runner) createResponse(state *RunState) *RunResponse {
	snapshot := state.Clone()
	resp := &RunResponse{
		ID:       snapshot.ID,
		Status:   snapshot.Status,
		Duration: snapshot.Duration(),
		Tasks:    snapshot.Tasks,
	}
	if snapshot.Error != nil {
		resp.Error = snapshot.Error.Error()
	}
	return resp
}

// GetRun returns a snapshot of the run with the given ID
func (r *Runner) GetRun(id string) (*RunState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, exists := r.runs[id]
	if !exists {
		return nil, ErrRunNotFound
	}
	return state.Clone(), nil
}

// ListRuns returns snapshots of all known runs
func (r *Runner) ListRuns() []*RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*RunState, 0, len(r.runs))
	for _, state := range r.runs {
		runs = append(runs, state.Clone())
	}
	return runs
}

// CancelRun cancels a running pipeline run
func (r *Runner) CancelRun(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, exists := r.runs[id]
	if !exists {
		return ErrRunNotFound
	}
	if state.GetStatus() != RunStatusRunning {
		return ErrRunNotRunning
	}

	if cancel, ok := r.cancels[id]; ok {
		cancel()
	}
	if r.metrics != nil {
		r.metrics.RunCancellations.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("run_id", id)))
	}
	return nil
}

// RemoveRun drops a finished run from the in-memory map
func (r *Runner) RemoveRun(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.runs, id)
}
