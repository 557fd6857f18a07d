// Package home lays out the besiktning working directory.
package home

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// DefaultDirName is the default name for the besiktning home directory.
	DefaultDirName = ".besiktning"

	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
)

// Subdirectories of the home directory.
const (
	RawPDFsDirName    = "raw_pdfs"
	RecordsDirName    = "records"
	PageLogsDirName   = "page_logs"
	LogsDirName       = "logs"
	PromptsDirName    = "prompts"
	EvaluationDirName = "evaluation"
)

// Dir represents the besiktning home directory structure.
type Dir struct {
	path string
}

// New creates a new Dir with the given path.
// If path is empty, uses the default (~/.besiktning).
func New(path string) (*Dir, error) {
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		path = filepath.Join(home, DefaultDirName)
	}

	return &Dir{path: path}, nil
}

// Path returns the root path of the home directory.
func (d *Dir) Path() string {
	return d.path
}

// ConfigPath returns the path to the default config file.
func (d *Dir) ConfigPath() string {
	return filepath.Join(d.path, ConfigFileName)
}

// RawPDFsDir holds downloaded inspection reports, one <id>.pdf each.
func (d *Dir) RawPDFsDir() string {
	return filepath.Join(d.path, RawPDFsDirName)
}

// RecordsDir holds one <id>.json extraction record per document.
func (d *Dir) RecordsDir() string {
	return filepath.Join(d.path, RecordsDirName)
}

// PageLogsDir holds the per-page debug logs.
func (d *Dir) PageLogsDir() string {
	return filepath.Join(d.path, PageLogsDirName)
}

// LogsDir holds the append-only CSV and JSONL logs.
func (d *Dir) LogsDir() string {
	return filepath.Join(d.path, LogsDirName)
}

// PromptsDir holds prompt overrides.
func (d *Dir) PromptsDir() string {
	return filepath.Join(d.path, PromptsDirName)
}

// EvaluationDir holds exported evaluation workbooks.
func (d *Dir) EvaluationDir() string {
	return filepath.Join(d.path, EvaluationDirName)
}

// RunLogPath returns the evaluation run log.
func (d *Dir) RunLogPath() string {
	return filepath.Join(d.LogsDir(), "evaluation_log.csv")
}

// UsageLogPath returns the per-document and per-batch usage log.
func (d *Dir) UsageLogPath() string {
	return filepath.Join(d.LogsDir(), "usage_log.csv")
}

// CallLogPath returns the model call trace.
func (d *Dir) CallLogPath() string {
	return filepath.Join(d.LogsDir(), "llm_calls.jsonl")
}

// Resolve returns p unchanged when absolute, otherwise relative to the
// home directory.
func (d *Dir) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(d.path, p)
}

// EnsureExists creates the home directory and subdirectories if they don't exist.
func (d *Dir) EnsureExists() error {
	for _, dir := range []string{
		d.RawPDFsDir(),
		d.RecordsDir(),
		d.PageLogsDir(),
		d.LogsDir(),
		d.PromptsDir(),
		d.EvaluationDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// Exists returns true if the home directory exists.
func (d *Dir) Exists() bool {
	_, err := os.Stat(d.path)
	return err == nil
}

// ConfigExists returns true if the config file exists in the home directory.
func (d *Dir) ConfigExists() bool {
	_, err := os.Stat(d.ConfigPath())
	return err == nil
}
