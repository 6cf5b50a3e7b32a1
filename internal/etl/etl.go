// Package etl defines the Titanic workflow: extract the passenger CSV
// over HTTP, aggregate passengers per ticket class, load the counts
// into the warehouse and render an Excel report. Each task declares
// its prerequisites and a file output; a task whose output exists is
// considered done and skipped on re-runs.
package etl

import (
	"log/slog"
	"net/http"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
)

// RegisterTasks wires the workflow tasks into the registry in
// execution order.
func RegisterTasks(registry *pipeline.Registry, cfg *config.Config, paths *config.Paths, store *warehouse.Store, client *http.Client, logger *slog.Logger) error {
	tasks := []pipeline.Task{
		NewExtractTask(cfg.Dataset, paths, client, logger),
		NewTransformTask(cfg.Dataset, paths, logger),
		NewLoadTask(store, paths, logger),
		NewReportTask(paths, logger),
	}

	for _, task := range tasks {
		if err := registry.Register(task); err != nil {
			return err
		}
	}

	return registry.ValidateDependencies()
}

// ArtifactScans lists the directories the job queue records into run
// manifests after a run.
func ArtifactScans(paths *config.Paths) []pipeline.ArtifactScan {
	return []pipeline.ArtifactScan{
		{Type: "raw_csv", Location: paths.RawDir, Pattern: "*.csv"},
		{Type: "staging_csv", Location: paths.StagingDir, Pattern: "*.csv"},
		{Type: "reports", Location: paths.ReportsDir, Pattern: "*.xlsx"},
	}
}
