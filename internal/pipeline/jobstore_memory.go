package pipeline

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryJobStore keeps jobs and run manifests in memory. Manifests are
// indexed by run ID so the queue can resume a run without scanning.
// Reads hand out copies; the store never shares its own pointers.
type MemoryJobStore struct {
	mu            sync.RWMutex
	jobs          map[string]*Job
	manifests     map[string]*RunManifest
	manifestByRun map[string]string // run ID -> manifest ID
}

// NewMemoryJobStore creates an empty in-memory job store.
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:          make(map[string]*Job),
		manifests:     make(map[string]*RunManifest),
		manifestByRun: make(map[string]string),
	}
}

// CreateJob stores a new job. Job IDs must be unique.
func (s *MemoryJobStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	s.jobs[job.ID] = job
	return nil
}

// GetJob returns a copy of the job with the given ID.
func (s *MemoryJobStore) GetJob(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[id]
	if !exists {
		return nil, fmt.Errorf("job %s not found", id)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// UpdateJob replaces a stored job.
func (s *MemoryJobStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("job %s not found", job.ID)
	}

	s.jobs[job.ID] = job
	return nil
}

// ListJobs returns the jobs matching the filter, newest first. The
// limit applies after sorting so callers always see the most recent
// jobs regardless of map iteration order.
func (s *MemoryJobStore) ListJobs(filter JobFilter) ([]*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Job
	for _, job := range s.jobs {
		if !filter.matches(job) {
			continue
		}
		jobCopy := *job
		matched = append(matched, &jobCopy)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}

	return matched, nil
}

// DeleteJob removes a job from the store.
func (s *MemoryJobStore) DeleteJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[id]; !exists {
		return fmt.Errorf("job %s not found", id)
	}

	delete(s.jobs, id)
	return nil
}

// CreateManifest stores a manifest and indexes it by run ID. A new
// manifest for an already-indexed run takes over the index entry, so
// a forced re-run supersedes the earlier manifest.
func (s *MemoryJobStore) CreateManifest(manifest *RunManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.manifests[manifest.ID]; exists {
		return fmt.Errorf("manifest %s already exists", manifest.ID)
	}

	s.manifests[manifest.ID] = manifest
	s.manifestByRun[manifest.RunID] = manifest.ID
	return nil
}

// GetManifest returns a deep copy of the manifest with the given ID.
func (s *MemoryJobStore) GetManifest(id string) (*RunManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	manifest, exists := s.manifests[id]
	if !exists {
		return nil, fmt.Errorf("manifest %s not found", id)
	}

	return manifest.Clone(), nil
}

// UpdateManifest replaces a stored manifest.
func (s *MemoryJobStore) UpdateManifest(manifest *RunManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.manifests[manifest.ID]; !exists {
		return fmt.Errorf("manifest %s not found", manifest.ID)
	}

	s.manifests[manifest.ID] = manifest
	s.manifestByRun[manifest.RunID] = manifest.ID
	return nil
}

// GetManifestByRunID returns a deep copy of the run's current manifest.
func (s *MemoryJobStore) GetManifestByRunID(runID string) (*RunManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.manifestByRun[runID]
	if !exists {
		return nil, fmt.Errorf("manifest for run %s not found", runID)
	}

	return s.manifests[id].Clone(), nil
}

// StatusCounts returns the number of stored jobs per status.
func (s *MemoryJobStore) StatusCounts() map[JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[JobStatus]int, 5)
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// CleanupOldJobs removes finished jobs created before the cutoff,
// together with the manifests of runs that no longer have any job.
// In-flight jobs are never touched. Returns the number of jobs removed.
func (s *MemoryJobStore) CleanupOldJobs(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	removed := 0

	for id, job := range s.jobs {
		if !job.Status.finished() || !job.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.jobs, id)
		removed++
	}

	// Drop manifests whose run has no surviving job.
	live := make(map[string]bool, len(s.jobs))
	for _, job := range s.jobs {
		live[job.RunID] = true
	}
	for runID, manifestID := range s.manifestByRun {
		if live[runID] {
			continue
		}
		delete(s.manifests, manifestID)
		delete(s.manifestByRun, runID)
	}

	return removed, nil
}

// finished reports whether the status is terminal.
func (st JobStatus) finished() bool {
	return st == JobStatusCompleted || st == JobStatusFailed || st == JobStatusCancelled
}

// matches reports whether the job passes every set filter field.
func (f JobFilter) matches(job *Job) bool {
	if f.Status != "" && job.Status != f.Status {
		return false
	}
	if f.RunID != "" && job.RunID != f.RunID {
		return false
	}
	if f.Task != "" && job.Task != f.Task {
		return false
	}
	if !f.Since.IsZero() && job.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
