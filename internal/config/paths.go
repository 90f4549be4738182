package config

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "macropipe/internal/errors"
)

// PathsConfig lays out the data tree. Relative paths resolve against
// DataDir (or the working directory for DataDir itself).
type PathsConfig struct {
	DataDir      string `yaml:"data_dir" envconfig:"DATA_DIR"`
	RawDir       string `yaml:"raw_dir" envconfig:"RAW_DIR"`
	CleanDir     string `yaml:"clean_dir" envconfig:"CLEAN_DIR"`
	ReportsDir   string `yaml:"reports_dir" envconfig:"REPORTS_DIR"`
	LogsDir      string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
	DatabaseFile string `yaml:"database_file" envconfig:"DATABASE_FILE"`
}

func defaultPaths() PathsConfig {
	return PathsConfig{
		DataDir:      "data",
		RawDir:       "raw",
		CleanDir:     "clean",
		ReportsDir:   "reports",
		LogsDir:      "logs",
		DatabaseFile: "macropipe.db",
	}
}

func (p PathsConfig) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.DataDir, path)
}

// RawPath returns the absolute-or-data-relative raw input directory.
func (p PathsConfig) RawPath() string { return p.resolve(p.RawDir) }

// CleanPath returns the cleaned output directory.
func (p PathsConfig) CleanPath() string { return p.resolve(p.CleanDir) }

// ReportsPath returns the reports directory.
func (p PathsConfig) ReportsPath() string { return p.resolve(p.ReportsDir) }

// LogsPath returns the log directory.
func (p PathsConfig) LogsPath() string { return p.resolve(p.LogsDir) }

// DatabasePath returns the SQLite database file path.
func (p PathsConfig) DatabasePath() string { return p.resolve(p.DatabaseFile) }

// EnsureDirectories creates the data tree if it does not exist.
func (p PathsConfig) EnsureDirectories() error {
	for _, dir := range []string{p.DataDir, p.RawPath(), p.CleanPath(), p.ReportsPath(), p.LogsPath()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return apperrors.NewStorageError(fmt.Sprintf("create directory %s", dir), err)
		}
	}
	return nil
}
