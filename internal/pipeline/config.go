package pipeline

import (
	"time"
)

// Config holds runner configuration
type Config struct {
	// TaskTimeouts maps task IDs to their execution timeouts
	TaskTimeouts map[string]time.Duration

	// RetryConfig defines retry behavior for retryable failures
	RetryConfig *RetryConfig

	// ContinueOnError determines if the run continues after a task fails
	ContinueOnError bool

	// Workers is the number of concurrent jobs the queue processes
	Workers int
}

// NewConfig creates a runner config with defaults
func NewConfig() *Config {
	return &Config{
		TaskTimeouts:    make(map[string]time.Duration),
		RetryConfig:     NewRetryConfig(),
		ContinueOnError: false,
		Workers:         1,
	}
}

// GetTaskTimeout returns the timeout for a task, falling back to the default
func (c *Config) GetTaskTimeout(taskID string) time.Duration {
	if c.TaskTimeouts != nil {
		if timeout, ok := c.TaskTimeouts[taskID]; ok {
			return timeout
		}
	}
	return DefaultTaskTimeout
}

// SetTaskTimeout sets the timeout for a specific task
func (c *Config) SetTaskTimeout(taskID string, timeout time.Duration) {
	if c.TaskTimeouts == nil {
		c.TaskTimeouts = make(map[string]time.Duration)
	}
	c.TaskTimeouts[taskID] = timeout
}

// ConfigBuilder provides a fluent interface for building configs
type ConfigBuilder struct {
	config *Config
}

// NewConfigBuilder creates a new config builder
func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		config: NewConfig(),
	}
}

// WithTaskTimeout sets a task timeout
func (b *ConfigBuilder) WithTaskTimeout(taskID string, timeout time.Duration) *ConfigBuilder {
	b.config.SetTaskTimeout(taskID, timeout)
	return b
}

// WithRetryConfig sets the retry configuration
func (b *ConfigBuilder) WithRetryConfig(rc *RetryConfig) *ConfigBuilder {
	b.config.RetryConfig = rc
	return b
}

// WithContinueOnError sets the continue-on-error behavior
func (b *ConfigBuilder) WithContinueOnError(continueOnError bool) *ConfigBuilder {
	b.config.ContinueOnError = continueOnError
	return b
}

// WithWorkers sets the job queue worker count
func (b *ConfigBuilder) WithWorkers(workers int) *ConfigBuilder {
	if workers > 0 {
		b.config.Workers = workers
	}
	return b
}

// Build returns the built config
func (b *ConfigBuilder) Build() *Config {
	return b.config
}
