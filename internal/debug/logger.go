// Package debug provides debug logging functionality using log/slog
package debug

import (
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	// logger is the global debug logger instance
	logger *slog.Logger
	// enabled indicates if debug logging is enabled
	enabled bool
	// mu protects the logger and enabled flag
	mu sync.RWMutex
)

func init() {
	Init(EnabledFromEnv())
}

// EnabledFromEnv reports whether the DEBUG environment variable requests debug output.
func EnabledFromEnv() bool {
	v := os.Getenv("DEBUG")
	return v != "" && v != "0" && v != "false"
}

// Init initializes the debug logger
// If enable is true, debug logs will be written to os.Stderr
// If enable is false, debug logs will be silently discarded
func Init(enable bool) {
	InitWriter(enable, os.Stderr)
}

// InitWriter is like Init but writes to w.
func InitWriter(enable bool, w io.Writer) {
	mu.Lock()
	defer mu.Unlock()

	enabled = enable

	if !enable {
		logger = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
		return
	}

	handler := log.NewWithOptions(w, log.Options{
		Prefix:          "prisma-engines",
		Level:           log.DebugLevel,
		ReportTimestamp: true,
	})
	logger = slog.New(handler)
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
