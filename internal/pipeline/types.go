package pipeline

import (
	"time"
)

// Well-known task IDs for the Titanic workflow.
const (
	TaskIDExtract   = "extract"
	TaskIDTransform = "transform"
	TaskIDLoad      = "load"
	TaskIDReport    = "report"
)

// DefaultTaskTimeout is applied when no per-task timeout is configured.
const DefaultTaskTimeout = 10 * time.Minute

// Run context keys tasks use to report data volumes.
const (
	ContextKeyRowsFetched  = "rows_fetched"
	ContextKeyBytesFetched = "bytes_fetched"
	ContextKeyRowsLoaded   = "rows_loaded"
)

// RetryConfig defines retry behavior for failed tasks
type RetryConfig struct {
	MaxAttempts  int           `json:"max_attempts"`
	InitialDelay time.Duration `json:"initial_delay"`
	MaxDelay     time.Duration `json:"max_delay"`
	Multiplier   float64       `json:"multiplier"`
}

// NewRetryConfig creates a retry config with sensible defaults
func NewRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// RunRequest represents a request to start a pipeline run
type RunRequest struct {
	ID         string                 `json:"id"`
	Task       string                 `json:"task,omitempty"`
	Force      bool                   `json:"force,omitempty"`
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// RunResponse summarizes the outcome of a run
type RunResponse struct {
	ID       string                `json:"id"`
	Status   RunStatus             `json:"status"`
	Duration time.Duration         `json:"duration"`
	Tasks    map[string]*TaskState `json:"tasks"`
	Error    string                `json:"error,omitempty"`
}

// ProgressUpdate is pushed to subscribers while a run executes
type ProgressUpdate struct {
	RunID     string    `json:"run_id"`
	TaskID    string    `json:"task_id,omitempty"`
	Status    string    `json:"status"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocket event types for run progress
const (
	EventRunStatus    = "run:status"
	EventRunProgress  = "run:progress"
	EventRunComplete  = "run:complete"
	EventTaskStatus   = "task:status"
	EventTaskProgress = "task:progress"
)
