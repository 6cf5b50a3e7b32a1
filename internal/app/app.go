package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/etl"
	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
	customMiddleware "github.com/Chrswb4/startup-ds-workshop/internal/middleware"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
	"github.com/Chrswb4/startup-ds-workshop/internal/services"
	handlers "github.com/Chrswb4/startup-ds-workshop/internal/transport/http"
	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
	ws "github.com/Chrswb4/startup-ds-workshop/internal/websocket"
)

const (
	VERSION = "v1.0.0"
	AppName = "startup-ds-workshop"
)

// BuildTime is set at compile time via -ldflags.
var BuildTime = time.Now().Format(time.RFC3339)

// Application wires together every component of the workflow server:
// configuration, logging, the task registry, the runner, the async job
// queue, the warehouse store, and the HTTP and WebSocket transports.
type Application struct {
	Config        *config.Config
	Paths         *config.Paths
	Router        *chi.Mux
	Server        *http.Server
	Store         *warehouse.Store
	Registry      *pipeline.Registry
	Runner        *pipeline.Runner
	JobQueue      *pipeline.JobQueue
	WebSocketHub  *ws.Hub
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Metrics       *infrastructure.BusinessMetrics
	Services      *ServiceContainer
}

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Run     *services.RunService
	Results *services.ResultsService
	Health  *services.HealthService
}

// NewApplication creates a fully wired application instance.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION))

	paths, err := config.NewPaths(".", cfg.Paths)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to ensure directories: %w", err)
	}
	paths.LogPathResolution()

	otelCfg := infrastructure.DefaultOTelConfig()
	otelCfg.ServiceName = AppName
	otelCfg.ServiceVersion = VERSION
	providers, err := infrastructure.InitializeOTel(otelCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	metrics, err := infrastructure.CreateBusinessMetrics(providers.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Paths:         paths,
		Logger:        logger,
		OTelProviders: providers,
		Metrics:       metrics,
	}

	if err := app.initializeServices(); err != nil {
		return nil, err
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the pipeline stack and the service layer
// on top of it.
func (a *Application) initializeServices() error {
	store, err := warehouse.Open(a.Paths.Warehouse, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to open warehouse: %w", err)
	}
	a.Store = store

	hub := ws.NewHub(a.Logger)
	hub.Start()
	a.WebSocketHub = hub

	// Task registry holds the full workflow graph. The HTTP client is
	// shared by every task that fetches remote data.
	registry := pipeline.NewRegistry()
	client := &http.Client{Timeout: a.Config.Dataset.FetchTimeout}
	if err := etl.RegisterTasks(registry, a.Config, a.Paths, store, client, a.Logger); err != nil {
		return fmt.Errorf("failed to register tasks: %w", err)
	}
	a.Registry = registry

	pipelineCfg := pipeline.NewConfigBuilder().
		WithTaskTimeout(pipeline.TaskIDExtract, a.Config.Dataset.FetchTimeout).
		WithRetryConfig(pipeline.NewRetryConfig()).
		WithWorkers(2).
		Build()

	a.Runner = pipeline.NewRunner(registry, pipelineCfg, hub, a.Logger)
	a.Runner.SetMetrics(a.Metrics)

	jobStore := pipeline.NewMemoryJobStore()
	a.JobQueue = pipeline.NewJobQueue(pipelineCfg.Workers, jobStore, a.Runner, a.Logger)
	a.JobQueue.SetArtifactScans(etl.ArtifactScans(a.Paths))
	a.JobQueue.SetMetrics(a.Metrics)
	a.JobQueue.Start(context.Background())

	runService := services.NewRunService(a.Runner, a.JobQueue, a.Metrics, a.Logger)
	resultsService := services.NewResultsService(store, a.Logger)
	healthService := services.NewHealthService(VERSION, BuildTime, store, hub, a.JobQueue, a.Logger)

	a.Services = &ServiceContainer{
		Run:     runService,
		Results: resultsService,
		Health:  healthService,
	}

	return nil
}

// setupRouter configures the HTTP router with all routes.
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Minimal middleware that does not wrap the ResponseWriter, so the
	// WebSocket upgrade keeps working.
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)

	// WebSocket route stays outside the full middleware group.
	r.HandleFunc("/ws", ws.ServeWS(a.WebSocketHub, a.Config.WebSocket, a.Logger))

	r.Group(func(r chi.Router) {
		r.Use(customMiddleware.StructuredLogger(a.Logger))
		r.Use(customMiddleware.BusinessMetricsMiddleware(a.Metrics))
		r.Use(customMiddleware.Recoverer(a.Logger))
		r.Use(customMiddleware.SecurityHeaders)

		if a.Config.Security.EnableCORS {
			r.Use(customMiddleware.CORS(a.getCORSConfig()))
		}

		if a.Config.Security.RateLimit.Enabled {
			r.Use(customMiddleware.NewRateLimiter(
				a.Config.Security.RateLimit.RPS,
				a.Config.Security.RateLimit.Burst,
				a.Logger,
			).Handler)
		}

		a.setupAPIRoutes(r)
	})

	// Prometheus scrape endpoint, outside the middleware group.
	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	a.Router = r
}

// setupAPIRoutes configures API endpoints.
func (a *Application) setupAPIRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		// Fast endpoints share the server read timeout.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.ReadTimeout, a.Logger))

			healthHandler := handlers.NewHealthHandler(a.Services.Health, a.Logger)
			r.Mount("/health", healthHandler.Routes())
			r.Get("/version", healthHandler.Version)

			resultsHandler := handlers.NewResultsHandler(a.Services.Results, a.Logger)
			r.Mount("/results", resultsHandler.Routes())

			jobsHandler := handlers.NewJobsHandler(a.Services.Run, a.Logger)
			r.Mount("/jobs", jobsHandler.Routes())
		})

		// Run endpoints get the longer workflow timeout.
		r.Group(func(r chi.Router) {
			r.Use(customMiddleware.Timeout(a.Config.Server.RunTimeout, a.Logger))

			runsHandler := handlers.NewRunsHandler(a.Services.Run, a.Logger)
			r.Mount("/runs", runsHandler.Routes())
		})
	})
}

func (a *Application) getCORSConfig() customMiddleware.CORSConfig {
	return customMiddleware.CORSConfig{
		AllowedOrigins:   a.Config.Security.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
		Logger:           a.Logger,
	}
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:           fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:        a.Router,
		ReadTimeout:    a.Config.Server.ReadTimeout,
		WriteTimeout:   a.Config.Server.WriteTimeout,
		IdleTimeout:    a.Config.Server.IdleTimeout,
		MaxHeaderBytes: a.Config.Server.MaxHeaderBytes,
	}
}

// Start starts the HTTP server in a background goroutine. A server
// failure cancels the supplied context so callers can unwind.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// Stop gracefully stops the application.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.JobQueue != nil {
		if err := a.JobQueue.Stop(30 * time.Second); err != nil {
			a.Logger.ErrorContext(ctx, "Failed to stop job queue gracefully",
				slog.String("error", err.Error()))
		}
	}

	a.WebSocketHub.Stop()

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.ErrorContext(ctx, "Failed to close warehouse",
				slog.String("error", err.Error()))
		}
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down telemetry",
				slog.String("error", err.Error()))
		}
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
