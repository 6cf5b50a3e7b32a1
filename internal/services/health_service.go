package services

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
	ws "github.com/Chrswb4/startup-ds-workshop/internal/websocket"
)

// HealthService provides health check functionality
type HealthService struct {
	version   string
	buildTime string
	store     *warehouse.Store
	hub       *ws.Hub
	queue     interface{ GetQueueStats() map[string]interface{} }
	startTime time.Time
	logger    *slog.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version"`
	Runtime   map[string]interface{} `json:"runtime,omitempty"`
	Services  map[string]interface{} `json:"services,omitempty"`
}

// ServiceHealth represents individual service health
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// NewHealthService creates a new health service
func NewHealthService(version, buildTime string, store *warehouse.Store, hub *ws.Hub, queue interface{ GetQueueStats() map[string]interface{} }, logger *slog.Logger) *HealthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthService{
		version:   version,
		buildTime: buildTime,
		store:     store,
		hub:       hub,
		queue:     queue,
		startTime: time.Now(),
		logger:    logger.With(slog.String("service", "health")),
	}
}

// Check returns the overall health of the application
func (s *HealthService) Check(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   s.version,
		Runtime: map[string]interface{}{
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
			"goroutines":     runtime.NumGoroutine(),
			"uptime_seconds": time.Since(s.startTime).Seconds(),
		},
		Services: make(map[string]interface{}),
	}

	if s.store != nil {
		if err := s.store.Ping(ctx); err != nil {
			status.Status = "degraded"
			status.Services["warehouse"] = ServiceHealth{Status: "unhealthy", Message: err.Error()}
		} else {
			status.Services["warehouse"] = ServiceHealth{Status: "healthy"}
		}
	}

	if s.hub != nil {
		status.Services["websocket"] = s.hub.Stats()
	}

	if s.queue != nil {
		status.Services["jobqueue"] = s.queue.GetQueueStats()
	}

	return status
}

// Ready reports whether the service can accept work. The warehouse
// must answer a ping for readiness.
func (s *HealthService) Ready(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	return s.store.Ping(ctx)
}

// Version returns build information
func (s *HealthService) Version() map[string]string {
	return map[string]string{
		"version":    s.version,
		"build_time": s.buildTime,
		"go_version": runtime.Version(),
	}
}
