// Package log is the process-wide structured logger. Calls take a message
// followed by alternating key/value pairs.
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/paularlott/logger"
	logslog "github.com/paularlott/logger/slog"
)

var (
	mu      sync.RWMutex
	current logger.Logger = newLogger("info", "console", os.Stderr)
)

func newLogger(level, format string, w io.Writer) logger.Logger {
	return logslog.New(logslog.Config{
		Level:  normalizeLevel(level),
		Format: normalizeFormat(format),
		Writer: w,
	})
}

// Configure replaces the global logger. Unknown levels fall back to info and
// unknown formats to console.
func Configure(level, format string) {
	ConfigureWriter(level, format, os.Stderr)
}

// ConfigureWriter is Configure with an explicit destination.
func ConfigureWriter(level, format string, w io.Writer) {
	l := newLogger(level, format, w)
	mu.Lock()
	current = l
	mu.Unlock()
}

// SetLogger installs an already built logger.
func SetLogger(l logger.Logger) {
	if l == nil {
		return
	}
	mu.Lock()
	current = l
	mu.Unlock()
}

func get() logger.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func Debug(msg string, keysAndValues ...any) { get().Debug(msg, keysAndValues...) }
func Info(msg string, keysAndValues ...any)  { get().Info(msg, keysAndValues...) }
func Warn(msg string, keysAndValues ...any)  { get().Warn(msg, keysAndValues...) }
func Error(msg string, keysAndValues ...any) { get().Error(msg, keysAndValues...) }

func normalizeLevel(level string) string {
	switch l := strings.ToLower(strings.TrimSpace(level)); l {
	case "trace", "debug", "info", "warn", "error":
		return l
	case "warning":
		return "warn"
	default:
		return "info"
	}
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return "json"
	}
	return "console"
}
