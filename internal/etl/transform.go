package etl

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/frame"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
)

// StagingFileName is the aggregated staging artifact
const StagingFileName = "passengers_by_class.csv"

// Staging CSV column names
const (
	ColumnClass      = "pclass"
	ColumnPassengers = "passengers"
)

// TransformTask aggregates the raw passenger CSV into passenger counts
// per ticket class and writes the result to the staging directory.
type TransformTask struct {
	pipeline.BaseTask
	groupColumn string
	in          string
	out         *pipeline.LocalTarget
	logger      *slog.Logger
}

// NewTransformTask creates the transform task
func NewTransformTask(cfg config.DatasetConfig, paths *config.Paths, logger *slog.Logger) *TransformTask {
	if logger == nil {
		logger = slog.Default()
	}
	return &TransformTask{
		BaseTask: pipeline.NewBaseTask(pipeline.TaskIDTransform, "Aggregate passengers by class",
			[]string{pipeline.TaskIDExtract}),
		groupColumn: cfg.GroupColumn,
		in:          paths.RawFile(RawFileName),
		out:         pipeline.NewLocalTarget(paths.StagingFile(StagingFileName)),
		logger:      logger.With(slog.String("task", pipeline.TaskIDTransform)),
	}
}

// Output returns the staging CSV target
func (t *TransformTask) Output() pipeline.Target {
	return t.out
}

// Execute reads the raw CSV, groups by ticket class and writes the counts
func (t *TransformTask) Execute(ctx context.Context, state *pipeline.RunState) error {
	df, err := frame.ReadCSVFile(t.in)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), fmt.Errorf("failed to read raw dataset: %w", err), false)
	}

	groups, err := df.GroupCount(t.groupColumn)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	rows := make([][]string, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, []string{g.Key, strconv.Itoa(g.Count)})
	}

	result, err := frame.New([]string{ColumnClass, ColumnPassengers}, rows)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	if err := result.WriteCSVFile(t.out.Path(), false); err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	state.SetContext("classes", len(groups))

	taskState := state.GetTask(t.ID())
	if taskState != nil {
		taskState.SetMetadata("input_rows", df.NumRows())
		taskState.SetMetadata("classes", len(groups))
	}

	t.logger.InfoContext(ctx, "aggregation written",
		slog.Int("input_rows", df.NumRows()),
		slog.Int("classes", len(groups)),
		slog.String("path", t.out.Path()))
	return nil
}
