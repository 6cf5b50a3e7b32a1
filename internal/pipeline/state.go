package pipeline

import (
	"sync"
	"time"
)

// RunStatus represents the overall run status
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// RunState represents the complete state of a pipeline run
type RunState struct {
	mu sync.RWMutex

	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty"`

	// Task states
	Tasks map[string]*TaskState `json:"tasks"`

	// Run context for passing data between tasks
	Context map[string]interface{} `json:"context"`

	// Configuration passed from the request
	Config map[string]interface{} `json:"config"`

	// Error if the run failed
	Error error `json:"error,omitempty"`
}

// NewRunState creates a new run state
func NewRunState(id string) *RunState {
	return &RunState{
		ID:        id,
		Status:    RunStatusPending,
		StartTime: time.Now(),
		Tasks:     make(map[string]*TaskState),
		Context:   make(map[string]interface{}),
		Config:    make(map[string]interface{}),
	}
}

// Start marks the run as running
func (r *RunState) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Status = RunStatusRunning
	r.StartTime = time.Now()
}

// Complete marks the run as completed
func (r *RunState) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCompleted
}

// Fail marks the run as failed
func (r *RunState) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusFailed
	r.Error = err
}

// Cancel marks the run as cancelled
func (r *RunState) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.EndTime = &now
	r.Status = RunStatusCancelled
}

// GetStatus returns the current run status
func (r *RunState) GetStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// GetTask returns the state of a specific task
func (r *RunState) GetTask(taskID string) *TaskState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Tasks[taskID]
}

// SetTask updates the state of a specific task
func (r *RunState) SetTask(taskID string, state *TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Tasks[taskID] = state
}

// GetContext retrieves a value from the run context
func (r *RunState) GetContext(key string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.Context[key]
	return val, ok
}

// SetContext sets a value in the run context
func (r *RunState) SetContext(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Context[key] = value
}

// GetConfig retrieves a configuration value
func (r *RunState) GetConfig(key string) (interface{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	val, ok := r.Config[key]
	return val, ok
}

// SetConfig sets a configuration value
func (r *RunState) SetConfig(key string, value interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Config[key] = value
}

// Duration returns the duration of the run
func (r *RunState) Duration() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.EndTime != nil {
		return r.EndTime.Sub(r.StartTime)
	}
	return time.Since(r.StartTime)
}

// GetCompletedTasks returns all completed tasks
func (r *RunState) GetCompletedTasks() []*TaskState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var completed []*TaskState
	for _, task := range r.Tasks {
		if task.GetStatus() == TaskStatusCompleted {
			completed = append(completed, task)
		}
	}
	return completed
}

// GetFailedTasks returns all failed tasks
func (r *RunState) GetFailedTasks() []*TaskState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var failed []*TaskState
	for _, task := range r.Tasks {
		if task.GetStatus() == TaskStatusFailed {
			failed = append(failed, task)
		}
	}
	return failed
}

// IsComplete returns true if no task is pending or active
func (r *RunState) IsComplete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, task := range r.Tasks {
		status := task.GetStatus()
		if status == TaskStatusPending || status == TaskStatusActive {
			return false
		}
	}
	return true
}

// HasFailures returns true if any task has failed
func (r *RunState) HasFailures() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, task := range r.Tasks {
		if task.GetStatus() == TaskStatusFailed {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the run state
func (r *RunState) Clone() *RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &RunState{
		ID:        r.ID,
		Status:    r.Status,
		StartTime: r.StartTime,
		Tasks:     make(map[string]*TaskState),
		Context:   make(map[string]interface{}),
		Config:    make(map[string]interface{}),
		Error:     r.Error,
	}

	if r.EndTime != nil {
		endTime := *r.EndTime
		clone.EndTime = &endTime
	}

	for k, v := range r.Tasks {
		v.mu.RLock()
		taskCopy := &TaskState{
			ID:        v.ID,
			Name:      v.Name,
			Status:    v.Status,
			StartTime: v.StartTime,
			EndTime:   v.EndTime,
			Progress:  v.Progress,
			Message:   v.Message,
			Error:     v.Error,
			Metadata:  make(map[string]interface{}),
		}
		for mk, mv := range v.Metadata {
			taskCopy.Metadata[mk] = mv
		}
		v.mu.RUnlock()
		clone.Tasks[k] = taskCopy
	}

	for k, v := range r.Context {
		clone.Context[k] = v
	}
	for k, v := range r.Config {
		clone.Config[k] = v
	}

	return clone
}
