package pipeline

// ProgressPublisher receives run and task progress notifications.
// The websocket hub implements this to push updates to clients.
type ProgressPublisher interface {
	PublishRunStatus(runID string, status RunStatus)
	PublishTaskProgress(runID, taskID string, progress int, message string)
}

// NoopPublisher discards all progress notifications
type NoopPublisher struct{}

func (NoopPublisher) PublishRunStatus(runID string, status RunStatus)                        {}
func (NoopPublisher) PublishTaskProgress(runID, taskID string, progress int, message string) {}
