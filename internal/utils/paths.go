// Package utils contains the file logger and filesystem path helpers shared
// by the console server, the CLI and the dev admin API.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths resolves filesystem locations under the console data directory.
type Paths struct {
	RootPath string `json:"root_path"`
}

// NewPaths constructs Paths rooted at the specified directory.
func NewPaths(rootPath string) *Paths {
	return &Paths{RootPath: rootPath}
}

// LogsDir returns the logs directory.
func (p *Paths) LogsDir() string {
	return filepath.Join(p.RootPath, "logs")
}

// ConfigDir returns the directory holding persisted console state.
func (p *Paths) ConfigDir() string {
	return filepath.Join(p.RootPath, "config")
}

// SessionsFile returns the path to the persisted operator sessions.
func (p *Paths) SessionsFile() string {
	return filepath.Join(p.ConfigDir(), "sessions.json")
}

// LogFile returns the main console log file path.
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogsDir(), "gwconsole.log")
}

// CLILogFile returns the log file used by gwctl.
func (p *Paths) CLILogFile() string {
	return filepath.Join(p.LogsDir(), "gwctl.log")
}

// CheckRoot verifies that the data directories exist.
func (p *Paths) CheckRoot() bool {
	for _, dir := range []string{p.RootPath, p.LogsDir(), p.ConfigDir()} {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// DeployRoot creates the data directory structure (idempotent).
func (p *Paths) DeployRoot(logger *Logger) {
	mkdirLog := func(path, label string) {
		_ = os.MkdirAll(path, 0o755)
		if logger != nil {
			logger.Write(fmt.Sprintf("Creating %s path: %s", label, path))
		}
	}

	mkdirLog(p.RootPath, "root")
	mkdirLog(p.LogsDir(), "logs")
	mkdirLog(p.ConfigDir(), "config")
}
