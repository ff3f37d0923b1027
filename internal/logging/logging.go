// Package logging provides categorized structured logging for Ansari.
// Each subsystem logs through a named zap logger so log output can be
// filtered per category. Before Init is called all loggers are no-ops,
// which keeps library code usable from tests without setup.
package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category identifies a logging subsystem.
type Category string

const (
	CategoryBoot   Category = "boot"   // Startup and shutdown
	CategoryAPI    Category = "api"    // LLM provider calls
	CategoryAgent  Category = "agent"  // Processing loop rounds
	CategoryTools  Category = "tools"  // Search tool invocations
	CategoryStore  Category = "store"  // SQLite persistence
	CategoryPrompt Category = "prompt" // Template loading and hot reload
	CategoryServer Category = "server" // HTTP adapter
)

var (
	mu      sync.RWMutex
	root    *zap.Logger
	sugared = make(map[Category]*zap.SugaredLogger)
)

// Init builds the process-wide root logger. level is one of
// debug/info/warn/error; verbose forces debug regardless of level.
func Init(level string, verbose bool) error {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build(zap.AddCallerSkip(0))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	mu.Lock()
	root = logger
	sugared = make(map[Category]*zap.SugaredLogger)
	mu.Unlock()
	return nil
}

// Get returns the logger for a category. Safe to call before Init;
// it returns a no-op logger in that case.
func Get(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if l, ok := sugared[cat]; ok {
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if l, ok := sugared[cat]; ok {
		return l
	}
	base := root
	if base == nil {
		base = zap.NewNop()
	}
	l := base.Named(string(cat)).Sugar()
	sugared[cat] = l
	return l
}

// Sync flushes buffered log entries. Call once at shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}
