// Package metrics provides JSONL event logging for search and indexing
// analytics.
package metrics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event names written to the log.
const (
	EventSearch      = "search"
	EventIndexUpdate = "index_update"
	EventError       = "error"
)

// Logger writes metrics events to JSONL file. A nil *Logger discards
// everything, so callers never need to check whether metrics are enabled.
type Logger struct {
	file *os.File
	mu   sync.Mutex
	now  func() time.Time
}

// NewLogger opens path for appending, creating parent directories.
func NewLogger(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}

	return &Logger{file: file, now: time.Now}, nil
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	return l.file.Close()
}

func (l *Logger) log(event string, data map[string]any) {
	if l == nil {
		return
	}

	e := map[string]any{
		"ts":    l.now().UTC().Format(time.RFC3339),
		"event": event,
	}
	for k, v := range data {
		e[k] = v
	}

	line, err := json.Marshal(e)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.file.Write(append(line, '\n'))
}

// LogSearch logs a search query event.
func (l *Logger) LogSearch(query, strategy string, results int, latencyMs int64, cacheHit bool) {
	l.log(EventSearch, map[string]any{
		"query":      query,
		"strategy":   strategy,
		"results":    results,
		"latency_ms": latencyMs,
		"cache_hit":  cacheHit,
	})
}

// IndexRun summarizes one indexing run for LogIndexUpdate.
type IndexRun struct {
	Repo           string
	FilesProcessed int
	FilesSkipped   int
	ChunksCreated  int
	ChunksFailed   int
	DurationMs     int64
}

// LogIndexUpdate logs an index update event.
func (l *Logger) LogIndexUpdate(run IndexRun) {
	l.log(EventIndexUpdate, map[string]any{
		"repo":            run.Repo,
		"files_processed": run.FilesProcessed,
		"files_skipped":   run.FilesSkipped,
		"chunks_created":  run.ChunksCreated,
		"chunks_failed":   run.ChunksFailed,
		"duration_ms":     run.DurationMs,
	})
}

// LogError logs an error event.
func (l *Logger) LogError(operation, message string) {
	l.log(EventError, map[string]any{
		"operation": operation,
		"message":   message,
	})
}
