package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Paths resolves every filesystem location the pipeline touches.
// All artifact paths hang off a single base directory so a whole
// workspace can be relocated by changing one setting.
type Paths struct {
	BaseDir    string // workspace root, absolute
	DataDir    string // data/
	RawDir     string // data/raw/       extract output
	StagingDir string // data/staging/   transform output
	ReportsDir string // data/reports/   report output
	Warehouse  string // data/warehouse.db
	LogsDir    string // logs/
}

// NewPaths builds a Paths rooted at baseDir. A relative baseDir is
// resolved against the current working directory.
func NewPaths(baseDir string, cfg PathsConfig) (*Paths, error) {
	if baseDir == "" {
		baseDir = "."
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}

	dataDir := cfg.DataDir
	if !filepath.IsAbs(dataDir) {
		dataDir = filepath.Join(abs, dataDir)
	}
	logsDir := cfg.LogsDir
	if logsDir == "" {
		logsDir = "logs"
	}
	if !filepath.IsAbs(logsDir) {
		logsDir = filepath.Join(abs, logsDir)
	}
	warehouse := cfg.WarehouseFile
	if warehouse == "" {
		warehouse = "warehouse.db"
	}
	if !filepath.IsAbs(warehouse) {
		warehouse = filepath.Join(dataDir, warehouse)
	}

	return &Paths{
		BaseDir:    abs,
		DataDir:    dataDir,
		RawDir:     filepath.Join(dataDir, "raw"),
		StagingDir: filepath.Join(dataDir, "staging"),
		ReportsDir: filepath.Join(dataDir, "reports"),
		Warehouse:  warehouse,
		LogsDir:    logsDir,
	}, nil
}

// GetPaths returns Paths for the current working directory with
// default path settings. Used by the CLI when no config is loaded.
func GetPaths() (*Paths, error) {
	return NewPaths(".", Default().Paths)
}

// EnsureDirectories creates every directory the pipeline writes into.
func (p *Paths) EnsureDirectories() error {
	dirs := []string{
		p.DataDir,
		p.RawDir,
		p.StagingDir,
		p.ReportsDir,
		p.LogsDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// RawFile returns the path of a file in the raw data directory.
func (p *Paths) RawFile(name string) string {
	return filepath.Join(p.RawDir, name)
}

// StagingFile returns the path of a file in the staging directory.
func (p *Paths) StagingFile(name string) string {
	return filepath.Join(p.StagingDir, name)
}

// ReportFile returns the path of a file in the reports directory.
func (p *Paths) ReportFile(name string) string {
	return filepath.Join(p.ReportsDir, name)
}

// LogPathResolution logs the resolved paths at debug level.
func (p *Paths) LogPathResolution() {
	slog.Debug("resolved workspace paths",
		slog.String("base_dir", p.BaseDir),
		slog.String("data_dir", p.DataDir),
		slog.String("raw_dir", p.RawDir),
		slog.String("staging_dir", p.StagingDir),
		slog.String("reports_dir", p.ReportsDir),
		slog.String("warehouse", p.Warehouse),
		slog.String("logs_dir", p.LogsDir),
	)
}
