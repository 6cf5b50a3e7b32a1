package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunManifest tracks the artifacts and task history of a pipeline run
type RunManifest struct {
	mu sync.RWMutex `json:"-"`

	// Identity
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`

	// Configuration
	DatasetURL string                 `json:"dataset_url,omitempty"`
	Config     map[string]interface{} `json:"config,omitempty"`

	// Artifact tracking
	Artifacts map[string]*ArtifactInfo `json:"artifacts"`

	// Execution tracking
	CompletedTasks []TaskExecution `json:"completed_tasks"`

	// Current status
	Status      string    `json:"status"` // "pending", "running", "completed", "failed"
	LastUpdated time.Time `json:"last_updated"`
	Error       string    `json:"error,omitempty"`
}

// ArtifactInfo tracks a file artifact a task produced
type ArtifactInfo struct {
	Type        string                 `json:"type"`         // e.g. "raw_csv", "staging_csv", "warehouse"
	Location    string                 `json:"location"`     // directory holding the artifact
	FileCount   int                    `json:"file_count"`   // number of matching files
	FilePattern string                 `json:"file_pattern"` // e.g. "*.csv"
	TotalSize   int64                  `json:"total_size"`   // total size in bytes
	Files       []string               `json:"files"`        // file names
	CreatedAt   time.Time              `json:"created_at"`
	CreatedBy   string                 `json:"created_by"` // task that produced it
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// TaskExecution tracks the execution of a single task
type TaskExecution struct {
	TaskID    string                 `json:"task_id"`
	TaskName  string                 `json:"task_name"`
	StartTime time.Time              `json:"start_time"`
	EndTime   time.Time              `json:"end_time"`
	Duration  string                 `json:"duration"`
	Status    string                 `json:"status"` // "running", "completed", "failed", "skipped"
	Outputs   []string               `json:"outputs"`
	Error     string                 `json:"error,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewRunManifest creates a manifest for a run. The ID must be unique
// across concurrent jobs, so it is derived from a fresh UUID.
func NewRunManifest(runID, datasetURL string) *RunManifest {
	return &RunManifest{
		ID:             fmt.Sprintf("manifest-%s", uuid.New().String()),
		RunID:          runID,
		StartTime:      time.Now(),
		DatasetURL:     datasetURL,
		Artifacts:      make(map[string]*ArtifactInfo),
		CompletedTasks: []TaskExecution{},
		Status:         "pending",
		LastUpdated:    time.Now(),
	}
}

// HasArtifact checks if an artifact type has been recorded
func (m *RunManifest) HasArtifact(artifactType string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, exists := m.Artifacts[artifactType]
	return exists
}

// GetArtifact returns information about a recorded artifact
func (m *RunManifest) GetArtifact(artifactType string) (*ArtifactInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	info, exists := m.Artifacts[artifactType]
	return info, exists
}

// AddArtifact records a newly produced artifact
func (m *RunManifest) AddArtifact(artifactType string, info *ArtifactInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	info.CreatedAt = time.Now()
	m.Artifacts[artifactType] = info
	m.LastUpdated = time.Now()
}

// RecordTaskStart records the start of a task execution
func (m *RunManifest) RecordTaskStart(taskID, taskName string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Update an existing entry on retry
	for i, task := range m.CompletedTasks {
		if task.TaskID == taskID {
			m.CompletedTasks[i].StartTime = time.Now()
			m.CompletedTasks[i].Status = "running"
			m.LastUpdated = time.Now()
			return
		}
	}

	m.CompletedTasks = append(m.CompletedTasks, TaskExecution{
		TaskID:    taskID,
		TaskName:  taskName,
		StartTime: time.Now(),
		Status:    "running",
	})
	m.LastUpdated = time.Now()
}

// RecordTaskCompletion records the completion of a task
func (m *RunManifest) RecordTaskCompletion(taskID string, outputs []string, metadata map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, task := range m.CompletedTasks {
		if task.TaskID == taskID {
			m.CompletedTasks[i].EndTime = time.Now()
			m.CompletedTasks[i].Duration = time.Since(task.StartTime).String()
			m.CompletedTasks[i].Status = "completed"
			m.CompletedTasks[i].Outputs = outputs
			m.CompletedTasks[i].Metadata = metadata
			break
		}
	}
	m.LastUpdated = time.Now()
}

// RecordTaskFailure records a task failure
func (m *RunManifest) RecordTaskFailure(taskID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, task := range m.CompletedTasks {
		if task.TaskID == taskID {
			m.CompletedTasks[i].EndTime = time.Now()
			m.CompletedTasks[i].Duration = time.Since(task.StartTime).String()
			m.CompletedTasks[i].Status = "failed"
			m.CompletedTasks[i].Error = err.Error()
			break
		}
	}
	m.Status = "failed"
	m.Error = fmt.Sprintf("task %s failed: %v", taskID, err)
	m.LastUpdated = time.Now()
}

// IsTaskCompleted checks if a task has completed in this run
func (m *RunManifest) IsTaskCompleted(taskID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, task := range m.CompletedTasks {
		if task.TaskID == taskID && task.Status == "completed" {
			return true
		}
	}
	return false
}

// SetStatus updates the overall run status
func (m *RunManifest) SetStatus(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Status = status
	m.LastUpdated = time.Now()
}

// ScanDataDirectory scans a directory and records the matching files
// as an artifact of the given type.
func (m *RunManifest) ScanDataDirectory(artifactType, location, pattern string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(location); os.IsNotExist(err) {
		return fmt.Errorf("directory does not exist: %s", location)
	}

	searchPattern := filepath.Join(location, pattern)
	files, err := filepath.Glob(searchPattern)
	if err != nil {
		return fmt.Errorf("failed to scan directory: %w", err)
	}

	var totalSize int64
	fileNames := make([]string, 0, len(files))
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			totalSize += info.Size()
			fileNames = append(fileNames, filepath.Base(file))
		}
	}

	m.Artifacts[artifactType] = &ArtifactInfo{
		Type:        artifactType,
		Location:    location,
		FileCount:   len(fileNames),
		FilePattern: pattern,
		TotalSize:   totalSize,
		Files:       fileNames,
		CreatedAt:   time.Now(),
	}

	m.LastUpdated = time.Now()
	return nil
}

// SaveToFile saves the manifest to a JSON file
func (m *RunManifest) SaveToFile(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}

	return nil
}

// LoadManifestFromFile loads a manifest from a JSON file
func LoadManifestFromFile(path string) (*RunManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest RunManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &manifest, nil
}

// Clone creates a deep copy of the manifest
func (m *RunManifest) Clone() *RunManifest {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, _ := json.Marshal(m)
	var clone RunManifest
	json.Unmarshal(data, &clone)

	return &clone
}

// GetProgress calculates overall progress as a percentage of the
// tasks that have entered execution.
func (m *RunManifest) GetProgress(totalTasks int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if totalTasks <= 0 {
		return 0
	}

	completed := 0
	for _, task := range m.CompletedTasks {
		if task.Status == "completed" || task.Status == "skipped" {
			completed++
		}
	}

	return (completed * 100) / totalTasks
}
