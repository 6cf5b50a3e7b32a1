package etl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/Chrswb4/startup-ds-workshop/internal/config"
	"github.com/Chrswb4/startup-ds-workshop/internal/frame"
	"github.com/Chrswb4/startup-ds-workshop/internal/pipeline"
)

// RawFileName is the raw passenger dataset artifact
const RawFileName = "titanic.csv"

// ExtractTask downloads the passenger dataset CSV over HTTP and writes
// it under the raw data directory. The download goes to a temp file
// first so the output target never holds a partial body.
type ExtractTask struct {
	pipeline.BaseTask
	client      *http.Client
	url         string
	maxBytes    int64
	groupColumn string
	out         *pipeline.LocalTarget
	logger      *slog.Logger
}

// NewExtractTask creates the extract task
func NewExtractTask(cfg config.DatasetConfig, paths *config.Paths, client *http.Client, logger *slog.Logger) *ExtractTask {
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ExtractTask{
		BaseTask:    pipeline.NewBaseTask(pipeline.TaskIDExtract, "Extract passenger dataset", nil),
		client:      client,
		url:         cfg.URL,
		maxBytes:    cfg.MaxDownloadMB * 1024 * 1024,
		groupColumn: cfg.GroupColumn,
		out:         pipeline.NewLocalTarget(paths.RawFile(RawFileName)),
		logger:      logger.With(slog.String("task", pipeline.TaskIDExtract)),
	}
}

// Output returns the raw CSV target
func (t *ExtractTask) Output() pipeline.Target {
	return t.out
}

// Execute downloads the dataset
func (t *ExtractTask) Execute(ctx context.Context, state *pipeline.RunState) error {
	url := t.url
	if v, ok := state.GetConfig("dataset_url"); ok {
		if s, ok := v.(string); ok && s != "" {
			url = s
		}
	}

	t.logger.InfoContext(ctx, "downloading dataset", slog.String("url", url))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return pipeline.NewValidationError(t.ID(), fmt.Sprintf("invalid dataset URL: %v", err))
	}
	req.Header.Set("Accept", "text/csv, text/plain, */*")

	resp, err := t.client.Do(req)
	if err != nil {
		// Network failures are worth retrying
		return pipeline.NewExecutionError(t.ID(), err, true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("unexpected status %s from %s", resp.Status, url)
		retryable := resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
		return pipeline.NewExecutionError(t.ID(), err, retryable)
	}

	body, err := t.readLimited(resp.Body)
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	// Validate the payload parses as CSV and carries the group column
	// before it replaces the target
	df, err := frame.ReadCSV(bytes.NewReader(body))
	if err != nil {
		return pipeline.NewExecutionError(t.ID(), fmt.Errorf("downloaded payload is not valid CSV: %w", err), false)
	}
	if t.groupColumn != "" && !df.HasColumn(t.groupColumn) {
		return pipeline.NewExecutionError(t.ID(),
			fmt.Errorf("downloaded CSV has no %q column", t.groupColumn), false)
	}

	if err := t.writeAtomic(body); err != nil {
		return pipeline.NewExecutionError(t.ID(), err, false)
	}

	state.SetContext(pipeline.ContextKeyRowsFetched, df.NumRows())
	state.SetContext(pipeline.ContextKeyBytesFetched, len(body))

	taskState := state.GetTask(t.ID())
	if taskState != nil {
		taskState.SetMetadata("rows", df.NumRows())
		taskState.SetMetadata("bytes", len(body))
		taskState.SetMetadata("url", url)
	}

	t.logger.InfoContext(ctx, "dataset downloaded",
		slog.Int("rows", df.NumRows()),
		slog.Int("bytes", len(body)),
		slog.String("path", t.out.Path()))
	return nil
}

// readLimited reads the response body enforcing the size cap
func (t *ExtractTask) readLimited(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, t.maxBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > t.maxBytes {
		return nil, fmt.Errorf("dataset exceeds download limit of %d bytes", t.maxBytes)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("dataset response body is empty")
	}
	return body, nil
}

// writeAtomic writes the body to a temp file and renames it into place
func (t *ExtractTask) writeAtomic(body []byte) error {
	path := t.out.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create raw directory: %w", err)
	}

	tmp := t.out.TempPath()
	if err := os.WriteFile(tmp, body, 0o644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to move dataset into place: %w", err)
	}
	return nil
}
