package pipeline

import (
	"fmt"
	"sync"
)

// Registry manages available pipeline tasks
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]Task
	order []string // preserves registration order
}

// NewRegistry creates a new task registry
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]Task),
		order: make([]string, 0),
	}
}

// Register adds a task to the registry
func (r *Registry) Register(task Task) error {
	if task == nil {
		return fmt.Errorf("cannot register nil task")
	}

	id := task.ID()
	if id == "" {
		return fmt.Errorf("task ID cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; exists {
		return fmt.Errorf("task with ID %s already registered", id)
	}

	r.tasks[id] = task
	r.order = append(r.order, id)
	return nil
}

// Unregister removes a task from the registry
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tasks[id]; !exists {
		return fmt.Errorf("task with ID %s not found", id)
	}

	delete(r.tasks, id)
	for i, taskID := range r.order {
		if taskID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Get retrieves a task by ID
func (r *Registry) Get(id string) (Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, exists := r.tasks[id]
	if !exists {
		return nil, fmt.Errorf("task with ID %s not found", id)
	}
	return task, nil
}

// Has checks if a task is registered
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.tasks[id]
	return exists
}

// List returns all registered tasks in registration order
func (r *Registry) List() []Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tasks := make([]Task, 0, len(r.order))
	for _, id := range r.order {
		tasks = append(tasks, r.tasks[id])
	}
	return tasks
}

// ListIDs returns all registered task IDs in registration order
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids
}

// Count returns the number of registered tasks
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tasks)
}

// Clear removes all tasks from the registry
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks = make(map[string]Task)
	r.order = make([]string, 0)
}

// GetDependencyOrder returns tasks sorted by their prerequisites.
// Uses topological sort, preserving registration order among
// tasks whose prerequisites are already satisfied.
func (r *Registry) GetDependencyOrder() ([]Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Build adjacency and in-degree maps
	inDegree := make(map[string]int)
	dependents := make(map[string][]string)

	for _, id := range r.order {
		inDegree[id] = 0
	}

	for _, id := range r.order {
		task := r.tasks[id]
		for _, dep := range task.Requires() {
			if _, exists := r.tasks[dep]; !exists {
				return nil, NewDependencyError(id, dep, fmt.Sprintf("prerequisite %s is not registered", dep))
			}
			dependents[dep] = append(dependents[dep], id)
			inDegree[id]++
		}
	}

	// Kahn's algorithm, seeding the queue in registration order
	queue := make([]string, 0)
	for _, id := range r.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	sorted := make([]Task, 0, len(r.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, r.tasks[id])

		for _, dependent := range dependents[id] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(sorted) != len(r.order) {
		return nil, NewFatalError("circular dependency detected in task graph", nil)
	}

	return sorted, nil
}

// ValidateDependencies checks that all prerequisites resolve to registered tasks
func (r *Registry) ValidateDependencies() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		task := r.tasks[id]
		for _, dep := range task.Requires() {
			if _, exists := r.tasks[dep]; !exists {
				return NewDependencyError(id, dep, fmt.Sprintf("prerequisite %s is not registered", dep))
			}
			if dep == id {
				return NewDependencyError(id, dep, "task cannot require itself")
			}
		}
	}
	return nil
}

// GetDependents returns the IDs of tasks that require the given task
func (r *Registry) GetDependents(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var dependents []string
	for _, taskID := range r.order {
		task := r.tasks[taskID]
		for _, dep := range task.Requires() {
			if dep == id {
				dependents = append(dependents, taskID)
				break
			}
		}
	}
	return dependents
}
