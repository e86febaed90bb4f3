// Package logging provides config-driven categorized file-based logging for sqlscout.
// Logs are written to .scout/logs/ with separate files per category.
// Logging is a silent no-op unless debug mode is enabled in the config.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup and wiring
	CategorySession   Category = "session"   // Dialog controller, persistence
	CategoryAPI       Category = "api"       // LLM chat calls
	CategoryEmbedding Category = "embedding" // Embedding engine and cache
	CategoryStore     Category = "store"     // Catalog and value index
	CategorySearch    Category = "search"    // SearchColumn / SearchValue
	CategoryGraph     Category = "graph"     // Schema graph and cache
	CategoryExecutor  Category = "executor"  // Action dispatch, SQL execution
	CategoryBatch     Category = "batch"     // Batch driver, worker pool
	CategoryResults   Category = "results"   // Final SQL extraction
)

// Options mirrors config.LoggingConfig so this package does not import config.
type Options struct {
	DebugMode  bool
	Level      string // debug, info, warn, error
	Categories map[string]bool
}

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	opts      Options
	optsMu    sync.RWMutex
	logLevel  int
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Initialize sets up the logging directory. Should be called once at startup
// with the workspace path. A no-op when debug mode is off.
func Initialize(workspace string, o Options) error {
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	optsMu.Lock()
	opts = o
	logLevel = parseLevel(o.Level)
	optsMu.Unlock()

	if !o.DebugMode {
		return nil
	}

	logsDir = filepath.Join(workspace, ".scout", "logs")
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	Get(CategoryBoot).Info("=== sqlscout logging initialized ===")
	return nil
}

func parseLevel(level string) int {
	switch level {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func enabled(category Category) bool {
	optsMu.RLock()
	defer optsMu.RUnlock()
	if !opts.DebugMode {
		return false
	}
	if opts.Categories == nil {
		return true
	}
	on, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return on
}

// Get returns the logger for a category, creating it on first use.
func Get(category Category) *Logger {
	loggersMu.RLock()
	l, ok := loggers[category]
	loggersMu.RUnlock()
	if ok {
		return l
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok = loggers[category]; ok {
		return l
	}

	l = &Logger{category: category}
	if logsDir != "" {
		path := filepath.Join(logsDir, string(category)+".log")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			l.file = f
			l.logger = log.New(f, "", 0)
		}
	}
	loggers[category] = l
	return l
}

func (l *Logger) write(level int, levelName, format string, args ...interface{}) {
	if !enabled(l.category) || l.logger == nil {
		return
	}
	optsMu.RLock()
	min := logLevel
	optsMu.RUnlock()
	if level < min {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)
	l.logger.Printf("%s [%s] %s", ts, levelName, msg)
}

// Debug logs at debug level.
func (l *Logger) Debug(format string, args ...interface{}) {
	l.write(LevelDebug, "DEBUG", format, args...)
}

// Info logs at info level.
func (l *Logger) Info(format string, args ...interface{}) {
	l.write(LevelInfo, "INFO", format, args...)
}

// Warn logs at warn level.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.write(LevelWarn, "WARN", format, args...)
}

// Error logs at error level.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// Close flushes and closes all category log files.
func Close() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			_ = l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

// Boot logs to the boot category at info level.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// Session logs to the session category at info level.
func Session(format string, args ...interface{}) { Get(CategorySession).Info(format, args...) }

// SessionDebug logs to the session category at debug level.
func SessionDebug(format string, args ...interface{}) { Get(CategorySession).Debug(format, args...) }

// API logs to the api category at info level.
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs to the api category at debug level.
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }

// Embedding logs to the embedding category at info level.
func Embedding(format string, args ...interface{}) { Get(CategoryEmbedding).Info(format, args...) }

// EmbeddingDebug logs to the embedding category at debug level.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// Store logs to the store category at info level.
func Store(format string, args ...interface{}) { Get(CategoryStore).Info(format, args...) }

// StoreDebug logs to the store category at debug level.
func StoreDebug(format string, args ...interface{}) { Get(CategoryStore).Debug(format, args...) }

// Search logs to the search category at info level.
func Search(format string, args ...interface{}) { Get(CategorySearch).Info(format, args...) }

// Graph logs to the graph category at info level.
func Graph(format string, args ...interface{}) { Get(CategoryGraph).Info(format, args...) }

// Executor logs to the executor category at info level.
func Executor(format string, args ...interface{}) { Get(CategoryExecutor).Info(format, args...) }

// ExecutorDebug logs to the executor category at debug level.
func ExecutorDebug(format string, args ...interface{}) { Get(CategoryExecutor).Debug(format, args...) }

// Batch logs to the batch category at info level.
func Batch(format string, args ...interface{}) { Get(CategoryBatch).Info(format, args...) }

// Results logs to the results category at info level.
func Results(format string, args ...interface{}) { Get(CategoryResults).Info(format, args...) }

// =============================================================================
// PERFORMANCE TIMER
// =============================================================================

// Timer tracks the duration of an operation for performance logging.
type Timer struct {
	category  Category
	operation string
	start     time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, operation: operation, start: time.Now()}
}

// Stop logs the elapsed time; slow operations (>1s) are logged at warn level.
func (t *Timer) Stop() {
	elapsed := time.Since(t.start)
	l := Get(t.category)
	if elapsed > time.Second {
		l.Warn("%s took %s", t.operation, elapsed)
		return
	}
	l.Debug("%s took %s", t.operation, elapsed)
}
