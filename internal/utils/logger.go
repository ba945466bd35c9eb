package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timestampLayout = "2006-01-02 15:04:05"

// Logger writes timestamped lines to a log file, or to stdout when the file
// cannot be opened.
type Logger struct {
	mu        sync.Mutex
	writeFile *os.File
	stdout    io.Writer
}

// defaultLogPath returns the console log path rooted next to the running
// executable, falling back to the temp directory.
func defaultLogPath() string {
	exe, err := os.Executable()
	if err == nil {
		if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil && resolved != "" {
			exe = resolved
		}
		return NewPaths(filepath.Join(filepath.Dir(exe), "data")).LogFile()
	}
	return NewPaths(filepath.Join(os.TempDir(), "gwconsole")).LogFile()
}

// writeToDefaultLog writes a single line to the default log, or stderr.
func writeToDefaultLog(message string) {
	path := defaultLogPath()
	_ = os.MkdirAll(filepath.Dir(path), 0o755)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", time.Now().Format(timestampLayout), message)
		return
	}
	defer f.Close()
	_, _ = fmt.Fprintf(f, "%s: %s\n", time.Now().Format(timestampLayout), message)
}

// NewLogger opens the given log file for appending. An empty path selects the
// default log. If the file cannot be opened, messages go to stdout.
func NewLogger(logFile string) *Logger {
	logger := &Logger{stdout: os.Stdout}
	if logFile == "" {
		logFile = defaultLogPath()
	}
	_ = os.MkdirAll(filepath.Dir(logFile), 0o755)

	var err error
	logger.writeFile, err = os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		writeToDefaultLog(fmt.Sprintf("Error opening log file (%s): %v", logFile, err))
		logger.writeFile = nil
	}
	return logger
}

// NewWriterLogger returns a logger that writes to w. Used by tests and by the
// CLI when it runs with -v.
func NewWriterLogger(w io.Writer) *Logger {
	return &Logger{stdout: w}
}

// Write appends a timestamped message to the log.
func (l *Logger) Write(message string) {
	if l == nil {
		return
	}
	line := fmt.Sprintf("%s: %s\n", time.Now().Format(timestampLayout), message)
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeFile != nil {
		_, _ = l.writeFile.WriteString(line)
		_ = l.writeFile.Sync()
		return
	}
	if l.stdout != nil {
		_, _ = io.WriteString(l.stdout, line)
	}
}

// Writef formats and appends a message.
func (l *Logger) Writef(format string, args ...interface{}) {
	if l == nil {
		return
	}
	l.Write(fmt.Sprintf(format, args...))
}

// Close closes the underlying file handle.
func (l *Logger) Close() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeFile != nil {
		_ = l.writeFile.Close()
		l.writeFile = nil
	}
}

// File returns the underlying write file handle when available.
func (l *Logger) File() *os.File {
	if l == nil {
		return nil
	}
	return l.writeFile
}
