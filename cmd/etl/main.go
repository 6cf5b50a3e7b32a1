package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/etl"
	"github.com/Chrswb4/startup-ds-workshop/internal/infrastructure"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
	"github.com/Chrswb4/startup-ds-workshop/internal/services"
	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
)

func main() {
	task := flag.String("task", "", "run a single task and its prerequisites (extract, transform, load, report); empty runs the full workflow")
	force := flag.Bool("force", false, "re-run tasks even when their outputs already exist")
	datasetURL := flag.String("url", "", "override the dataset URL for this run")
	dataDir := flag.String("data", "", "base directory for data and logs (defaults to the working directory)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	paths, err := config.NewPaths(*dataDir, cfg.Paths)
	if err != nil {
		slog.Error("Failed to resolve paths", "error", err)
		os.Exit(1)
	}
	if err := paths.EnsureDirectories(); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	store, err := warehouse.Open(paths.Warehouse, logger)
	if err != nil {
		logger.Error("Failed to open warehouse", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	registry := pipeline.NewRegistry()
	client := &http.Client{Timeout: cfg.Dataset.FetchTimeout}
	if err := etl.RegisterTasks(registry, cfg, paths, store, client, logger); err != nil {
		logger.Error("Failed to register tasks", slog.String("error", err.Error()))
		os.Exit(1)
	}

	pipelineCfg := pipeline.NewConfigBuilder().
		WithTaskTimeout(pipeline.TaskIDExtract, cfg.Dataset.FetchTimeout).
		Build()
	runner := pipeline.NewRunner(registry, pipelineCfg, pipeline.NoopPublisher{}, logger)
	runService := services.NewRunService(runner, nil, nil, logger)

	// Ctrl-C cancels the run and lets the runner record the state.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	req := pipeline.RunRequest{
		Task:  *task,
		Force: *force,
	}
	if *datasetURL != "" {
		req.Parameters = map[string]interface{}{"dataset_url": *datasetURL}
	}

	logger.Info("Starting workflow run",
		slog.String("task", *task),
		slog.Bool("force", *force),
		slog.String("data_dir", paths.DataDir))

	start := time.Now()
	resp, err := runService.ExecuteRun(ctx, req)
	if resp != nil {
		printSummary(resp, time.Since(start))
	}
	if err != nil {
		logger.Error("Workflow run failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if resp.Status != pipeline.RunStatusCompleted {
		os.Exit(1)
	}
}

func printSummary(resp *pipeline.RunResponse, elapsed time.Duration) {
	fmt.Printf("Run %s finished with status %s in %s\n", resp.ID, resp.Status, elapsed.Round(time.Millisecond))
	for id, state := range resp.Tasks {
		line := fmt.Sprintf("  %-10s %s", id, state.Status)
		if state.Message != "" {
			line += "  (" + state.Message + ")"
		}
		fmt.Println(line)
	}
	if resp.Error != "" {
		fmt.Printf("Error: %s\n", resp.Error)
	}
}
