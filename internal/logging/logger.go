// Package logging provides config-driven categorized logging for the hub client.
// Every category shares one zap core; categories can be toggled individually.
// Until Configure is called every logger is a no-op, so library code stays quiet
// when embedded in a host that does not opt in.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup, CLI wiring
	CategoryConfig     Category = "config"     // Config load, hot reload
	CategoryDebounce   Category = "debounce"   // Debounced timers
	CategoryVisibility Category = "visibility" // Viewport intersection
	CategoryPaging     Category = "paging"     // Pagination / infinite scroll
	CategoryQuery      Category = "query"      // Query engine, retries
	CategoryCache      Category = "cache"      // Query cache, sweeps
	CategoryChat       Category = "chat"       // WebSocket chat channel
	CategoryAPI        Category = "api"        // REST calls
	CategoryStore      Category = "store"      // Local preference storage
	CategoryUI         Category = "ui"         // Terminal views
)

// Options mirrors config.LoggingConfig to avoid an import cycle.
type Options struct {
	Level      string          // debug, info, warn, error
	JSONFormat bool            // json encoder instead of console
	File       string          // optional output file; stderr when empty
	Categories map[string]bool // per-category toggles; missing = enabled
}

// Logger is a category-scoped printf logger. A Logger with a nil sugar is a no-op.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu      sync.RWMutex
	base    = zap.NewNop()
	opts    Options
	loggers = make(map[Category]*Logger)
)

// Build constructs a zap logger from options the way the CLI root does it:
// production config, level override, optional file sink.
func Build(o Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !o.JSONFormat {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(o.Level))
	cfg.Sampling = nil

	if o.File != "" {
		if err := os.MkdirAll(filepath.Dir(o.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		cfg.OutputPaths = []string{o.File}
		cfg.ErrorOutputPaths = []string{o.File}
	} else {
		cfg.OutputPaths = []string{"stderr"}
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return l, nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Configure installs l as the shared core and resets the category cache.
// Passing nil restores the no-op logger.
func Configure(l *zap.Logger, o Options) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	opts = o
	loggers = make(map[Category]*Logger)
}

// IsCategoryEnabled returns whether a specific category is enabled
func IsCategoryEnabled(category Category) bool {
	mu.RLock()
	defer mu.RUnlock()
	return categoryEnabled(category)
}

func categoryEnabled(category Category) bool {
	if opts.Categories == nil {
		return true
	}
	enabled, exists := opts.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category.
// Returns a no-op logger if the category is disabled.
func Get(category Category) *Logger {
	mu.RLock()
	if l, ok := loggers[category]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	l := &Logger{category: category}
	if categoryEnabled(category) {
		l.sugar = base.With(zap.String("cat", string(category))).Sugar()
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Debugf(format, args...)
}

// Info logs an informational message
func (l *Logger) Info(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...interface{}) {
	if l.sugar == nil {
		return
	}
	l.sugar.Errorf(format, args...)
}

// With returns a child logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	if l.sugar == nil {
		return l
	}
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes the shared core.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}

// =============================================================================
// Convenience functions
// =============================================================================

func Boot(format string, args ...interface{}) {
	Get(CategoryBoot).Info(format, args...)
}

func Config(format string, args ...interface{}) {
	Get(CategoryConfig).Info(format, args...)
}

func ConfigWarn(format string, args ...interface{}) {
	Get(CategoryConfig).Warn(format, args...)
}

func Paging(format string, args ...interface{}) {
	Get(CategoryPaging).Info(format, args...)
}

func PagingDebug(format string, args ...interface{}) {
	Get(CategoryPaging).Debug(format, args...)
}

func PagingWarn(format string, args ...interface{}) {
	Get(CategoryPaging).Warn(format, args...)
}

func Query(format string, args ...interface{}) {
	Get(CategoryQuery).Info(format, args...)
}

func QueryDebug(format string, args ...interface{}) {
	Get(CategoryQuery).Debug(format, args...)
}

func QueryWarn(format string, args ...interface{}) {
	Get(CategoryQuery).Warn(format, args...)
}

func CacheDebug(format string, args ...interface{}) {
	Get(CategoryCache).Debug(format, args...)
}

func Chat(format string, args ...interface{}) {
	Get(CategoryChat).Info(format, args...)
}

func ChatDebug(format string, args ...interface{}) {
	Get(CategoryChat).Debug(format, args...)
}

func ChatWarn(format string, args ...interface{}) {
	Get(CategoryChat).Warn(format, args...)
}

func APIDebug(format string, args ...interface{}) {
	Get(CategoryAPI).Debug(format, args...)
}

func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

func VisibilityWarn(format string, args ...interface{}) {
	Get(CategoryVisibility).Warn(format, args...)
}
