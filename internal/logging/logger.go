// Package logging provides the file-backed debug trace shared by swarm components.
// Operator-facing lines go through the standard log package with a
// "[component]" prefix; verbose traces go here.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger writes timestamped lines to a file. The zero value and a nil
// pointer are both valid no-op loggers.
type DebugLogger struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
	prefix string
}

// NewDebugLogger opens (appending) the log at logPath, creating parent
// directories. An empty path yields a no-op logger.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return &DebugLogger{}, nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	l := &DebugLogger{w: f, closer: f}
	l.Log("=== swarm debug log started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// NewForRepo opens <repo>/.swarmer/logs/swarm-debug.log, falling back to a
// no-op logger if it cannot be created.
func NewForRepo(repoPath string) *DebugLogger {
	l, err := NewDebugLogger(filepath.Join(repoPath, ".swarmer", "logs", "swarm-debug.log"))
	if err != nil {
		return &DebugLogger{}
	}
	return l
}

// NewWriter logs to w. Used by tests.
func NewWriter(w io.Writer) *DebugLogger {
	return &DebugLogger{w: w}
}

// Nop returns a logger that discards everything.
func Nop() *DebugLogger {
	return &DebugLogger{}
}

// With returns a logger sharing the destination whose lines start with prefix.
func (l *DebugLogger) With(prefix string) *DebugLogger {
	if l == nil || l.w == nil {
		return l
	}
	return &DebugLogger{w: &lockedWriter{l: l}, prefix: l.prefix + prefix + " "}
}

// Log writes one timestamped line.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.w == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.w, "[%s] %s%s\n", time.Now().Format("15:04:05.000"), l.prefix, msg)
	if f, ok := l.w.(*os.File); ok {
		_ = f.Sync()
	}
}

// Func returns Log as a plain function for components that take a debugLog hook.
func (l *DebugLogger) Func() func(format string, args ...interface{}) {
	return l.Log
}

// Close closes the underlying file, if any.
func (l *DebugLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closer.Close()
}

// lockedWriter routes a derived logger's writes through the parent's mutex.
type lockedWriter struct {
	l *DebugLogger
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.l.mu.Lock()
	defer w.l.mu.Unlock()
	return w.l.w.Write(p)
}
