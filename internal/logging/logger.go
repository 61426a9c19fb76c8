// Package logging provides categorized loggers for ocellus.
// Every category is a named child of one zap logger installed at startup.
// Until Initialize is called all loggers are no-ops, which keeps tests quiet.
package logging

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/system
type Category string

const (
	CategoryBoot      Category = "boot"      // Startup, config loading
	CategoryAuth      Category = "auth"      // Login and verification exchanges
	CategoryFetch     Category = "fetch"     // Profile downloads and cooldown
	CategoryNormalize Category = "normalize" // Profile -> facts
	CategoryKernel    Category = "kernel"    // Mangle fact base
	CategoryStore     Category = "store"     // SQLite persistence
	CategorySystems   Category = "systems"   // System index lookups and reloads
	CategoryEDDN      Category = "eddn"      // Upload side-channel
)

// Options controls how Initialize builds the shared logger.
type Options struct {
	Level string // debug, info, warn, error
	JSON  bool
	// Disabled lists categories that should stay silent.
	Disabled []string
}

// Logger wraps a sugared zap logger tagged with its category.
type Logger struct {
	category Category
	sugar    *zap.SugaredLogger
}

var (
	mu       sync.RWMutex
	base     = zap.NewNop()
	loggers  = make(map[Category]*Logger)
	disabled = make(map[Category]bool)
)

// Build creates a zap logger from options using the production preset.
func Build(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if !opts.JSON {
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zapcore.ParseLevel(opts.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	return cfg.Build()
}

// Initialize installs l as the parent of every category logger.
// Passing nil resets to a no-op logger.
func Initialize(l *zap.Logger, opts Options) {
	mu.Lock()
	defer mu.Unlock()

	if l == nil {
		l = zap.NewNop()
	}
	base = l
	loggers = make(map[Category]*Logger)
	disabled = make(map[Category]bool, len(opts.Disabled))
	for _, c := range opts.Disabled {
		disabled[Category(c)] = true
	}
}

// Get returns (or creates) a logger for the given category.
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

	parent := base
	if disabled[category] {
		parent = zap.NewNop()
	}
	l := &Logger{
		category: category,
		sugar:    parent.Named(string(category)).Sugar(),
	}
	loggers[category] = l
	return l
}

func (l *Logger) Debug(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l *Logger) Info(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l *Logger) Warn(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l *Logger) Error(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// With returns a child logger carrying structured key/value context.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{category: l.category, sugar: l.sugar.With(keysAndValues...)}
}

// Sync flushes buffered entries. Errors from syncing stdout/stderr are ignored.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

// =============================================================================
// CONVENIENCE FUNCTIONS
// =============================================================================

func Boot(format string, args ...interface{})      { Get(CategoryBoot).Info(format, args...) }
func BootWarn(format string, args ...interface{})  { Get(CategoryBoot).Warn(format, args...) }
func Auth(format string, args ...interface{})      { Get(CategoryAuth).Info(format, args...) }
func AuthDebug(format string, args ...interface{}) { Get(CategoryAuth).Debug(format, args...) }
func AuthWarn(format string, args ...interface{})  { Get(CategoryAuth).Warn(format, args...) }
func Fetch(format string, args ...interface{})     { Get(CategoryFetch).Info(format, args...) }
func FetchDebug(format string, args ...interface{}) {
	Get(CategoryFetch).Debug(format, args...)
}
func FetchWarn(format string, args ...interface{}) { Get(CategoryFetch).Warn(format, args...) }
func Normalize(format string, args ...interface{}) {
	Get(CategoryNormalize).Info(format, args...)
}
func NormalizeDebug(format string, args ...interface{}) {
	Get(CategoryNormalize).Debug(format, args...)
}
func NormalizeWarn(format string, args ...interface{}) {
	Get(CategoryNormalize).Warn(format, args...)
}
func Kernel(format string, args ...interface{})      { Get(CategoryKernel).Info(format, args...) }
func KernelDebug(format string, args ...interface{}) { Get(CategoryKernel).Debug(format, args...) }
func Store(format string, args ...interface{})       { Get(CategoryStore).Info(format, args...) }
func StoreDebug(format string, args ...interface{})  { Get(CategoryStore).Debug(format, args...) }
func Systems(format string, args ...interface{})     { Get(CategorySystems).Info(format, args...) }
func SystemsDebug(format string, args ...interface{}) {
	Get(CategorySystems).Debug(format, args...)
}
func SystemsWarn(format string, args ...interface{}) { Get(CategorySystems).Warn(format, args...) }
func EDDN(format string, args ...interface{})        { Get(CategoryEDDN).Info(format, args...) }
func EDDNDebug(format string, args ...interface{})   { Get(CategoryEDDN).Debug(format, args...) }
func EDDNWarn(format string, args ...interface{})    { Get(CategoryEDDN).Warn(format, args...) }

// =============================================================================
// TIMERS
// =============================================================================

// Timer measures an operation and logs its duration on Stop.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation
func StartTimer(category Category, operation string) *Timer {
	return &Timer{
		category: category,
		op:       operation,
		start:    time.Now(),
	}
}

// Stop ends the timer and logs the duration
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs warning if duration exceeds threshold
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

