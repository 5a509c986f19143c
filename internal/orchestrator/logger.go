package orchestrator

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// current is the logger debugLog writes through. Helpers without an
// *Orchestrator at hand (dependency graph, dispatch) log here.
var current atomic.Pointer[DebugLogger]

func setPackageLogger(l *DebugLogger) {
	current.Store(l)
}

func debugLog(format string, args ...interface{}) {
	current.Load().Log(format, args...)
}

// DebugLogger appends timestamped lines to a file. The zero value and a nil
// pointer discard everything.
type DebugLogger struct {
	out    *log.Logger
	closer io.Closer
}

// NewDebugLogger opens logPath for appending, creating its directory. An
// empty path gives a logger that discards everything.
func NewDebugLogger(logPath string) (*DebugLogger, error) {
	if logPath == "" {
		return NopLogger(), nil
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	l := &DebugLogger{
		out:    log.New(f, "", log.Ltime|log.Lmicroseconds),
		closer: f,
	}
	l.Log("--- agora pid %d, %s ---", os.Getpid(), time.Now().Format(time.RFC3339))
	return l, nil
}

// DebugLogPath is where a project's debug log lives.
func DebugLogPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".agora", "logs", "orchestrator-debug.log")
}

// NewDebugLoggerForProject opens the project's debug log, falling back to a
// discarding logger when the file cannot be opened.
func NewDebugLoggerForProject(projectRoot string) *DebugLogger {
	l, err := NewDebugLogger(DebugLogPath(projectRoot))
	if err != nil {
		log.Printf("[orchestrator] debug log disabled: %v", err)
		return NopLogger()
	}
	return l
}

// NopLogger returns a logger that discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes one line. log.Logger serializes concurrent writers.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.out == nil {
		return
	}
	l.out.Printf(format, args...)
}

// Close closes the underlying file.
func (l *DebugLogger) Close() error {
	if l == nil || l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
