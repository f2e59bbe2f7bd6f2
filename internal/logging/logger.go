// Package logging provides categorized file-based logging for the
// classification service. Each subsystem writes to its own file under the
// configured log directory; when debug mode is off, everything is a no-op.
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
	CategoryBoot       Category = "boot"       // Startup and wiring
	CategoryEmbedding  Category = "embedding"  // Embedding provider calls
	CategorySearch     Category = "search"     // Vector index queries
	CategoryRetrieval  Category = "retrieval"  // Candidate shortlist assembly
	CategoryCompletion Category = "completion" // Chat completion calls
	CategoryClassify   Category = "classify"   // Classification state machine
	CategoryAdjudicate Category = "adjudicate" // Multi-coder adjudication
	CategoryCache      Category = "cache"      // LRU hit/miss/eviction activity
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Options controls logger behavior. Settings come from the config package;
// this package never reads files itself.
type Options struct {
	// Dir is where per-category log files are created.
	Dir string
	// Debug enables logging at all. False means every call is a no-op.
	Debug bool
	// Level filters messages below it ("debug", "info", "warn", "error").
	Level string
	// Categories enables a subset; empty means all categories.
	Categories map[string]bool
}

// Logger writes to a single category file. The file is opened on the first
// message that passes the level filter, so filtered-out categories never
// leave an empty file behind.
type Logger struct {
	category Category
	enabled  bool
}

// sink is an open per-category log file.
type sink struct {
	logger *log.Logger
	file   *os.File
}

var (
	mu       sync.RWMutex
	sinks    = make(map[Category]*sink)
	opts     Options
	logLevel = LevelInfo
)

// Initialize configures the logging system. Call once at startup before any
// logging. Safe to call again (e.g. in tests); open files are closed first.
func Initialize(o Options) error {
	CloseAll()

	mu.Lock()
	opts = o
	switch o.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	mu.Unlock()

	if !o.Debug {
		return nil
	}
	if o.Dir == "" {
		return fmt.Errorf("log directory required when debug logging is enabled")
	}
	if err := os.MkdirAll(o.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	Boot("=== soccode logging initialized ===")
	Boot("Log directory: %s, level: %s", o.Dir, o.Level)
	return nil
}

func categoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()

	if !opts.Debug || opts.Dir == "" {
		return false
	}
	if len(opts.Categories) == 0 {
		return true
	}
	enabled, ok := opts.Categories[string(category)]
	if !ok {
		return true
	}
	return enabled
}

// Get returns the logger for a category. Disabled categories get a no-op
// logger. The category file does not exist until the first message passes
// the level filter.
func Get(category Category) *Logger {
	return &Logger{category: category, enabled: categoryEnabled(category)}
}

// open returns the sink for a category, creating its file on first use.
func open(category Category) *sink {
	mu.RLock()
	if s, ok := sinks[category]; ok {
		mu.RUnlock()
		return s
	}
	dir := opts.Dir
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if s, ok := sinks[category]; ok {
		return s
	}

	date := time.Now().Format("2006-01-02")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", date, category))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] could not open %s: %v\n", path, err)
		return nil
	}

	s := &sink{
		file:   file,
		logger: log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	sinks[category] = s
	return s
}

func (l *Logger) write(level int, tag, format string, args ...interface{}) {
	if !l.enabled || logLevel > level {
		return
	}
	s := open(l.category)
	if s == nil {
		return
	}
	s.logger.Printf("[%s] %s", tag, fmt.Sprintf(format, args...))
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

// Error logs at error level. Always written when the category is enabled.
func (l *Logger) Error(format string, args ...interface{}) {
	l.write(LevelError, "ERROR", format, args...)
}

// CloseAll closes all open log files. Call at shutdown.
func CloseAll() {
	mu.Lock()
	defer mu.Unlock()

	for _, s := range sinks {
		if s.file != nil {
			s.file.Close()
		}
	}
	sinks = make(map[Category]*sink)
}

// Timer measures an operation's duration for a category.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// Convenience helpers. No-ops when the category is disabled.

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

// Embedding logs to the embedding category.
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingDebug logs debug to the embedding category.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// Search logs to the search category.
func Search(format string, args ...interface{}) {
	Get(CategorySearch).Info(format, args...)
}

// SearchDebug logs debug to the search category.
func SearchDebug(format string, args ...interface{}) {
	Get(CategorySearch).Debug(format, args...)
}

// Retrieval logs to the retrieval category.
func Retrieval(format string, args ...interface{}) {
	Get(CategoryRetrieval).Info(format, args...)
}

// RetrievalDebug logs debug to the retrieval category.
func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debug(format, args...)
}

// Completion logs to the completion category.
func Completion(format string, args ...interface{}) {
	Get(CategoryCompletion).Info(format, args...)
}

// CompletionDebug logs debug to the completion category.
func CompletionDebug(format string, args ...interface{}) {
	Get(CategoryCompletion).Debug(format, args...)
}

// Classify logs to the classify category.
func Classify(format string, args ...interface{}) {
	Get(CategoryClassify).Info(format, args...)
}

// ClassifyDebug logs debug to the classify category.
func ClassifyDebug(format string, args ...interface{}) {
	Get(CategoryClassify).Debug(format, args...)
}

// Adjudicate logs to the adjudicate category.
func Adjudicate(format string, args ...interface{}) {
	Get(CategoryAdjudicate).Info(format, args...)
}

// AdjudicateDebug logs debug to the adjudicate category.
func AdjudicateDebug(format string, args ...interface{}) {
	Get(CategoryAdjudicate).Debug(format, args...)
}

// CacheDebug logs debug to the cache category.
func CacheDebug(format string, args ...interface{}) {
	Get(CategoryCache).Debug(format, args...)
}
