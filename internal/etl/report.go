package etl

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/frame"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
)

// ReportFileName is the Excel report artifact
const ReportFileName = "passengers_by_class.xlsx"

const reportSheet = "By Class"

// ReportTask renders the aggregated class counts into an Excel
// workbook under the reports directory.
type ReportTask struct {
	pipeline.BaseTask
	in     string
	out    *pipeline.LocalTarget
	logger *slog.Logger
}

// NewReportTask creates the report task
func NewReportTask(paths *config.Paths, logger *slog.Logger) *ReportTask {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportTask{
		BaseTask: pipeline.NewBaseTask(pipeline.TaskIDReport, "Render class counts report",
			[]string{pipeline.TaskIDTransform}),
		in:     paths.StagingFile(StagingFileName),
		out:    pipeline.NewLocalTarget(paths.ReportFile(ReportFileName)),
		logger: logger.With(slog.String("task", pipeline.TaskIDReport)),
	}
}

// Output returns the Excel report target
func (t *ReportTask) Output() pipeline.Target {
	return t.out
}

// Execute renders the staging CSV into a workbook
func (t *ReportTask) Execute(ctx context.Context, state *pipeline.RunState) error {
	df, err := frame.ReadCSVFile(t.in)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), fmt.Errorf("failed to read staging file: %w", err), false)
	}

	classes, err := df.Column(ColumnClass)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}
	counts, err := df.Column(ColumnPassengers)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", reportSheet); err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"DCE6F1"}, Pattern: 1},
	})
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	f.SetCellValue(reportSheet, "A1", "Ticket Class")
	f.SetCellValue(reportSheet, "B1", "Passengers")
	f.SetCellStyle(reportSheet, "A1", "B1", headerStyle)

	for i := range classes {
		row := i + 2
		f.SetCellValue(reportSheet, "A"+strconv.Itoa(row), classes[i])
		if n, convErr := strconv.Atoi(counts[i]); convErr == nil {
			f.SetCellValue(reportSheet, "B"+strconv.Itoa(row), n)
		} else {
			f.SetCellValue(reportSheet, "B"+strconv.Itoa(row), counts[i])
		}
	}

	f.SetColWidth(reportSheet, "A", "B", 16)

	if err := t.saveAtomic(f); err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	taskState := state.GetTask(t.ID())
	if taskState != nil {
		taskState.SetMetadata("classes", len(classes))
	}

	t.logger.InfoContext(ctx, "report written",
		slog.Int("classes", len(classes)),
		slog.String("path", t.out.Path()))
	return nil
}

// saveAtomic writes the workbook to a temp file and renames it into place
func (t *ReportTask) saveAtomic(f *excelize.File) error {
	path := t.out.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create reports directory: %w", err)
	}

	// excelize derives the format from the extension, so the temp
	// name keeps the .xlsx suffix
	tmp := t.out.TempPath() + ".xlsx"
	if err := f.SaveAs(tmp); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move workbook into place: %w", err)
	}
	return nil
}
