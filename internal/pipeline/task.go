package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Target is a reference to an artifact a task produces. A task is
// considered complete when its target exists, which makes re-runs
// idempotent: finished work is skipped.
type Target interface {
	// Exists reports whether the artifact has been produced
	Exists() bool

	// Path returns the filesystem location of the artifact
	Path() string
}

// LocalTarget is a Target backed by a local file.
type LocalTarget struct {
	path string
}

// NewLocalTarget creates a target for the given file path.
func NewLocalTarget(path string) *LocalTarget {
	return &LocalTarget{path: path}
}

// Exists reports whether the target file exists.
func (t *LocalTarget) Exists() bool {
	if t == nil || t.path == "" {
		return false
	}
	info, err := os.Stat(t.path)
	return err == nil && !info.IsDir()
}

// Path returns the target file path.
func (t *LocalTarget) Path() string {
	if t == nil {
		return ""
	}
	return t.path
}

// TempPath returns a sibling path for atomic write-then-rename. The
// completion check is only trustworthy if the target never exists in a
// half-written state.
func (t *LocalTarget) TempPath() string {
	dir := filepath.Dir(t.path)
	return filepath.Join(dir, fmt.Sprintf(".%s.tmp", filepath.Base(t.path)))
}

// Task represents a single unit of work in the pipeline
type Task interface {
	// ID returns the unique identifier for this task
	ID() string

	// Name returns the human-readable name for this task
	Name() string

	// Requires returns the IDs of tasks whose outputs this task consumes
	Requires() []string

	// Output returns the target this task produces, or nil if the task
	// has no materialized output
	Output() Target

	// Execute runs the task with the given context and run state
	Execute(ctx context.Context, state *RunState) error
}

// IsComplete reports whether a task's output target already exists.
// Tasks without an output are never complete up front.
func IsComplete(t Task) bool {
	out := t.Output()
	return out != nil && out.Exists()
}

// TaskStatus represents the current status of a task
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusActive    TaskStatus = "active"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// TaskState represents the runtime state of a task
type TaskState struct {
	mu        sync.RWMutex           `json:"-"`
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    TaskStatus             `json:"status"`
	StartTime *time.Time             `json:"start_time,omitempty"`
	EndTime   *time.Time             `json:"end_time,omitempty"`
	Progress  float64                `json:"progress"`
	Message   string                 `json:"message"`
	Error     error                  `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewTaskState creates a new task state with default values
func NewTaskState(id, name string) *TaskState {
	return &TaskState{
		ID:       id,
		Name:     name,
		Status:   TaskStatusPending,
		Progress: 0,
		Metadata: make(map[string]interface{}),
	}
}

// Start marks the task as active and sets the start time
func (s *TaskState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.StartTime = &now
	s.Status = TaskStatusActive
	s.Progress = 0
}

// Complete marks the task as completed and sets the end time
func (s *TaskState) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = TaskStatusCompleted
	s.Progress = 100
}

// Fail marks the task as failed with the given error
func (s *TaskState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = TaskStatusFailed
	s.Error = err
}

// Skip marks the task as skipped with the given reason
func (s *TaskState) Skip(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.EndTime = &now
	s.Status = TaskStatusSkipped
	s.Message = reason
}

// UpdateProgress updates the task progress and message
func (s *TaskState) UpdateProgress(progress float64, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Progress = progress
	s.Message = message
}

// SetMetadata records a metadata value on the task state
func (s *TaskState) SetMetadata(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Metadata == nil {
		s.Metadata = make(map[string]interface{})
	}
	s.Metadata[key] = value
}

// Duration returns the duration of the task execution
func (s *TaskState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.StartTime == nil {
		return 0
	}
	if s.EndTime != nil {
		return s.EndTime.Sub(*s.StartTime)
	}
	return time.Since(*s.StartTime)
}

// GetStatus returns the current status under the lock
func (s *TaskState) GetStatus() TaskStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Status
}

// BaseTask provides common functionality for Task implementations
type BaseTask struct {
	id       string
	name     string
	requires []string
}

// NewBaseTask creates a new base task
func NewBaseTask(id, name string, requires []string) BaseTask {
	if requires == nil {
		requires = []string{}
	}
	return BaseTask{
		id:       id,
		name:     name,
		requires: requires,
	}
}

// ID returns the task ID
func (b *BaseTask) ID() string {
	if b == nil {
		return ""
	}
	return b.id
}

// Name returns the task name
func (b *BaseTask) Name() string {
	if b == nil {
		return ""
	}
	return b.name
}

// Requires returns the task prerequisites
func (b *BaseTask) Requires() []string {
	if b == nil {
		return nil
	}
	return b.requires
}

// Output returns nil by default; tasks with a materialized artifact
// override this.
func (b *BaseTask) Output() Target {
	return nil
}
