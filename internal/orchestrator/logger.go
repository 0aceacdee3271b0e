package orchestrator

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DebugLogger appends timestamped orchestration traces for one feature.
// A nil logger or one without a file discards everything.
type DebugLogger struct {
	mu      sync.Mutex
	file    *os.File
	feature string
}

// NewDebugLogger opens (or creates) the log at logPath for appending.
// An empty path yields a no-op logger.
func NewDebugLogger(logPath, featureID string) (*DebugLogger, error) {
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

	l := &DebugLogger{file: f, feature: featureID}
	l.Log("=== run started at %s ===", time.Now().Format(time.RFC3339))
	return l, nil
}

// DebugLogPath is where a feature's run log lives inside a project.
func DebugLogPath(repoPath, featureID string) string {
	if featureID == "" {
		featureID = "orchestrator"
	}
	return filepath.Join(repoPath, ".shipline", "logs", featureID+".log")
}

// NewDebugLoggerForFeature opens the feature's log under .shipline/logs.
// Failures degrade to a no-op logger; tracing never blocks a run.
func NewDebugLoggerForFeature(repoPath, featureID string) *DebugLogger {
	l, err := NewDebugLogger(DebugLogPath(repoPath, featureID), featureID)
	if err != nil {
		return &DebugLogger{}
	}
	return l
}

// NopLogger discards everything.
func NopLogger() *DebugLogger {
	return &DebugLogger{}
}

// Log writes one line. Safe for concurrent use by batch workers.
func (l *DebugLogger) Log(format string, args ...interface{}) {
	if l == nil || l.file == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("15:04:05.000")
	if l.feature != "" {
		fmt.Fprintf(l.file, "[%s] (%s) %s\n", ts, l.feature, fmt.Sprintf(format, args...))
	} else {
		fmt.Fprintf(l.file, "[%s] %s\n", ts, fmt.Sprintf(format, args...))
	}
	l.file.Sync()
}

// Path returns the backing file name, or "" for a no-op logger.
func (l *DebugLogger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

func (l *DebugLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.file.Close()
	l.file = nil
	return err
}
