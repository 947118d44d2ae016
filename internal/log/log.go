// ABOUTME: Levelled logging wrapper around slog levels for bridge components
// ABOUTME: Global level via SetLevel; writes to stderr so stdout stays free for the terminal stream

package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level constants matching slog levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

var (
	level atomic.Int64

	outMu sync.Mutex
	out   io.Writer = os.Stderr
)

func init() {
	level.Store(int64(LevelInfo))
}

// SetLevel sets the global log level.
func SetLevel(l slog.Level) {
	level.Store(int64(l))
}

// GetLevel returns the current log level.
func GetLevel() slog.Level {
	return slog.Level(level.Load())
}

// ParseLevel maps a config string ("debug", "info", "warn", "error") to a level.
// Unknown values fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetOutput redirects log output. Passing nil restores stderr.
func SetOutput(w io.Writer) {
	outMu.Lock()
	defer outMu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	out = w
}

// Debug logs a debug message if the level allows it.
func Debug(format string, args ...any) {
	emit(LevelDebug, "[DEBUG] ", format, args)
}

// Info logs an info message if the level allows it.
func Info(format string, args ...any) {
	emit(LevelInfo, "[INFO] ", format, args)
}

// Warn logs a warning message if the level allows it.
func Warn(format string, args ...any) {
	emit(LevelWarn, "[WARN] ", format, args)
}

// Error logs an error message (always emitted).
func Error(format string, args ...any) {
	emit(LevelError, "[ERROR] ", format, args)
}

// Logger prefixes every message with a component tag, e.g. "[relay] ".
type Logger struct {
	prefix string
}

// With returns a Logger tagged with the given component name.
func With(component string) Logger {
	return Logger{prefix: "[" + component + "] "}
}

func (l Logger) Debug(format string, args ...any) {
	emit(LevelDebug, "[DEBUG] "+l.prefix, format, args)
}

func (l Logger) Info(format string, args ...any) {
	emit(LevelInfo, "[INFO] "+l.prefix, format, args)
}

func (l Logger) Warn(format string, args ...any) {
	emit(LevelWarn, "[WARN] "+l.prefix, format, args)
}

func (l Logger) Error(format string, args ...any) {
	emit(LevelError, "[ERROR] "+l.prefix, format, args)
}

func emit(l slog.Level, tag, format string, args []any) {
	if l < LevelError && slog.Level(level.Load()) > l {
		return
	}
	msg := fmt.Sprintf(tag+format+"\n", args...)

	outMu.Lock()
	defer outMu.Unlock()
	_, _ = io.WriteString(out, msg)
}
