// Package events provides the append-only audit trail for cascades: a
// JSONL event log plus a local SQLite store for querying. Emission never
// blocks or fails the task — persistence failures are written to a debug
// side channel and swallowed, because observability must not fail the work
// it observes.
package events

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ShayCichocki/cascade/pkg/models"
)

// Logger appends cascade events as one JSON object per line. The file
// only ever grows; rotation and trimming are external concerns.
type Logger struct {
	mu    sync.Mutex
	file  *os.File
	store *Store
	debug *DebugLogger
}

// NewLogger opens (or creates) the JSONL event log at path. An optional
// Store mirrors events for querying; an optional DebugLogger receives
// persistence failures. Both may be nil.
func NewLogger(path string, store *Store, debug *DebugLogger) (*Logger, error) {
	var file *os.File
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create event log directory: %w", err)
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open event log: %w", err)
		}
		file = f
	}

	return &Logger{file: file, store: store, debug: debug}, nil
}

// NopLogger returns a logger that records nothing. Useful for tests and
// for hosts running with cascades disabled.
func NopLogger() *Logger {
	return &Logger{}
}

// Emit appends one event. Events are written in call order, one line
// each; failures are logged to the side channel and swallowed.
func (l *Logger) Emit(event models.CascadeEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		line, err := json.Marshal(event)
		if err != nil {
			l.debug.Log("event marshal failed: %v", err)
		} else if _, err := l.file.Write(append(line, '\n')); err != nil {
			l.debug.Log("event write failed: %v", err)
		}
	}

	if l.store != nil {
		if err := l.store.Append(event); err != nil {
			l.debug.Log("event store append failed: %v", err)
		}
	}
}

// Close closes the underlying log file. The store is owned by the caller
// and closed separately.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
