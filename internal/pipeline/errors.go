package pipeline

import (
	"fmt"
)

// ErrorType represents the type of pipeline error
type ErrorType string

const (
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeDependency   ErrorType = "dependency"
	ErrorTypeExecution    ErrorType = "execution"
	ErrorTypeTimeout      ErrorType = "timeout"
	ErrorTypeCancellation ErrorType = "cancellation"
	ErrorTypeFatal        ErrorType = "fatal"
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeInvalidState ErrorType = "invalid_state"
)

// PipelineError represents a pipeline-specific error
type PipelineError struct {
	Type      ErrorType              `json:"type"`
	Task      string                 `json:"task,omitempty"`
	Message   string                 `json:"message"`
	Cause     error                  `json:"cause,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Retryable bool                   `json:"retryable"`
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e == nil {
		return "unknown pipeline error"
	}
	if e.Task != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Type, e.Task, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewValidationError creates a new validation error
func NewValidationError(task, message string) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeValidation,
		Task:      task,
		Message:   message,
		Retryable: false,
	}
}

// NewDependencyError creates a new dependency error
func NewDependencyError(task, dependsOn, message string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeDependency,
		Task:    task,
		Message: message,
		Context: map[string]interface{}{
			"depends_on": dependsOn,
		},
		Retryable: false,
	}
}

// NewExecutionError creates a new execution error
func NewExecutionError(task string, cause error, retryable bool) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeExecution,
		Task:      task,
		Message:   "task execution failed",
		Cause:     cause,
		Retryable: retryable,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(task string, timeout string) *PipelineError {
	return &PipelineError{
		Type:    ErrorTypeTimeout,
		Task:    task,
		Message: fmt.Sprintf("task exceeded timeout of %s", timeout),
		Context: map[string]interface{}{
			"timeout": timeout,
		},
		Retryable: true,
	}
}

// NewCancellationError creates a new cancellation error
func NewCancellationError(task string) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeCancellation,
		Task:      task,
		Message:   "run was cancelled",
		Retryable: false,
	}
}

// NewFatalError creates a new fatal error
func NewFatalError(message string, cause error) *PipelineError {
	return &PipelineError{
		Type:      ErrorTypeFatal,
		Message:   message,
		Cause:     cause,
		Retryable: false,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if pErr, ok := err.(*PipelineError); ok {
		return pErr.Retryable
	}
	return false
}

// GetErrorType returns the type of the error
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ""
	}
	if pErr, ok := err.(*PipelineError); ok {
		return pErr.Type
	}
	return ErrorTypeExecution
}

// WrapError wraps an error with pipeline context
func WrapError(err error, task string, message string) *PipelineError {
	if err == nil {
		return nil
	}

	// If it's already a PipelineError, enhance it
	if pErr, ok := err.(*PipelineError); ok {
		if pErr.Task == "" {
			pErr.Task = task
		}
		if message != "" {
			pErr.Message = fmt.Sprintf("%s: %s", message, pErr.Message)
		}
		return pErr
	}

	return &PipelineError{
		Type:      ErrorTypeExecution,
		Task:      task,
		Message:   message,
		Cause:     err,
		Retryable: false,
	}
}

// Common pipeline errors
var (
	// ErrRunNotFound is returned when a run cannot be found
	ErrRunNotFound = &PipelineError{
		Type:    ErrorTypeNotFound,
		Message: "run not found",
	}

	// ErrRunCompleted is returned when trying to modify a completed run
	ErrRunCompleted = &PipelineError{
		Type:    ErrorTypeInvalidState,
		Message: "run has already completed",
	}

	// ErrRunNotRunning is returned when trying to stop a run that's not running
	ErrRunNotRunning = &PipelineError{
		Type:    ErrorTypeInvalidState,
		Message: "run is not running",
	}
)
