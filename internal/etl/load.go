package etl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/frame"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
	"github.com/Chrswb4/startup-ds-workshop/internal/warehouse"
)

// LoadTask inserts the aggregated class counts into the warehouse
// database. The table is replaced wholesale inside a transaction, so
// re-running the task leaves exactly one row per class. A marker file
// next to the database records the load and serves as the task output.
type LoadTask struct {
	pipeline.BaseTask
	store  *warehouse.Store
	in     string
	out    *pipeline.LocalTarget
	logger *slog.Logger
}

// NewLoadTask creates the load task
func NewLoadTask(store *warehouse.Store, paths *config.Paths, logger *slog.Logger) *LoadTask {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoadTask{
		BaseTask: pipeline.NewBaseTask(pipeline.TaskIDLoad, "Load class counts into warehouse",
			[]string{pipeline.TaskIDTransform}),
		store:  store,
		in:     paths.StagingFile(StagingFileName),
		out:    pipeline.NewLocalTarget(paths.Warehouse + ".loaded"),
		logger: logger.With(slog.String("task", pipeline.TaskIDLoad)),
	}
}

// Output returns the load marker target
func (t *LoadTask) Output() pipeline.Target {
	return t.out
}

// Execute loads the staging CSV into the class_counts table
func (t *LoadTask) Execute(ctx context.Context, state *pipeline.RunState) error {
	df, err := frame.ReadCSVFile(t.in)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), fmt.Errorf("failed to read staging file: %w", err), false)
	}

	rows, err := t.parseRows(df)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	if err := t.store.ReplaceClassCounts(ctx, rows); err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	if err := t.writeMarker(len(rows)); err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	state.SetContext(pipeline.ContextKeyRowsLoaded, len(rows))

	taskState := state.GetTask(t.ID())
	if taskState != nil {
		taskState.SetMetadata("rows_loaded", len(rows))
	}

	t.logger.InfoContext(ctx, "class counts loaded",
		slog.Int("rows", len(rows)),
		slog.String("marker", t.out.Path()))
	return nil
}

// parseRows converts the staging frame into warehouse rows
func (t *LoadTask) parseRows(df *frame.Frame) ([]warehouse.ClassCount, error) {
	classes, err := df.Column(ColumnClass)
	if err != nil {
		return nil, fmt.Errorf("staging file is missing the %s column: %w", ColumnClass, err)
	}
	counts, err := df.Column(ColumnPassengers)
	if err != nil {
		return nil, fmt.Errorf("staging file is missing the %s column: %w", ColumnPassengers, err)
	}

	now := time.Now().UTC()
	rows := make([]warehouse.ClassCount, 0, len(classes))
	for i := range classes {
		n, err := strconv.Atoi(counts[i])
		if err != nil {
			return nil, fmt.Errorf("invalid passenger count %q for class %q", counts[i], classes[i])
		}
		rows = append(rows, warehouse.ClassCount{
			Pclass:     classes[i],
			Passengers: n,
			LoadedAt:   now,
		})
	}
	return rows, nil
}

// writeMarker records a successful load next to the database file
func (t *LoadTask) writeMarker(rowCount int) error {
	path := t.out.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create warehouse directory: %w", err)
	}

	content := fmt.Sprintf("loaded_at=%s\nrows=%d\n", time.Now().UTC().Format(time.RFC3339), rowCount)
	tmp := t.out.TempPath()
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write load marker: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move load marker into place: %w", err)
	}
	return nil
}
