package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// LogLevel defines the severity of the log entry.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String makes LogLevel satisfy the fmt.Stringer interface.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo // Default to INFO for unknown
	}
}

// ParseLevel converts a user supplied level name into a LogLevel.
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Format selects the slog handler used in CLI mode.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
)

// InitForCLI initializes the logging system for CLI mode.
// This should be called once at application startup.
func InitForCLI(filterLevel LogLevel, format Format, output io.Writer) {
	opts := &slog.HandlerOptions{
		Level: filterLevel.SlogLevel(),
	}

	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	mu.Lock()
	defaultLogger = slog.New(handler)
	mu.Unlock()
	slog.SetDefault(defaultLogger)
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func logInternal(base *slog.Logger, level LogLevel, subsystem string, err error, messageFmt string, args ...interface{}) {
	msg := messageFmt
	if len(args) > 0 {
		msg = fmt.Sprintf(messageFmt, args...)
	}

	if base == nil {
		// Not initialized yet, e.g. in package tests.
		base = slog.Default()
	}

	slogAttrs := []slog.Attr{slog.String("subsystem", subsystem)}
	if err != nil {
		slogAttrs = append(slogAttrs, slog.String("error", err.Error()))
	}

	base.LogAttrs(context.Background(), level.SlogLevel(), msg, slogAttrs...)
}

// Debug logs a debug message.
func Debug(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(current(), LevelDebug, subsystem, nil, messageFmt, args...)
}

// Info logs an informational message.
func Info(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(current(), LevelInfo, subsystem, nil, messageFmt, args...)
}

// Warn logs a warning message.
func Warn(subsystem string, messageFmt string, args ...interface{}) {
	logInternal(current(), LevelWarn, subsystem, nil, messageFmt, args...)
}

// Error logs an error message.
func Error(subsystem string, err error, messageFmt string, args ...interface{}) {
	logInternal(current(), LevelError, subsystem, err, messageFmt, args...)
}

// Slog returns the configured slog logger, falling back to slog.Default.
func Slog() *slog.Logger {
	if l := current(); l != nil {
		return l
	}
	return slog.Default()
}

// Logger is a subsystem logger carrying fixed attributes, e.g. the platform
// and run ID of a single platform run.
type Logger struct {
	subsystem string
	attrs     []any
}

// With returns a Logger for subsystem that adds attrs to every entry.
func With(subsystem string, attrs ...any) *Logger {
	return &Logger{subsystem: subsystem, attrs: attrs}
}

// Subsystem returns a copy of l logging under a different subsystem.
func (l *Logger) Subsystem(subsystem string) *Logger {
	return &Logger{subsystem: subsystem, attrs: l.attrs}
}

func (l *Logger) base() *slog.Logger {
	b := Slog()
	if len(l.attrs) == 0 {
		return b
	}
	return b.With(l.attrs...)
}

func (l *Logger) Debug(messageFmt string, args ...interface{}) {
	logInternal(l.base(), LevelDebug, l.subsystem, nil, messageFmt, args...)
}

func (l *Logger) Info(messageFmt string, args ...interface{}) {
	logInternal(l.base(), LevelInfo, l.subsystem, nil, messageFmt, args...)
}

func (l *Logger) Warn(messageFmt string, args ...interface{}) {
	logInternal(l.base(), LevelWarn, l.subsystem, nil, messageFmt, args...)
}

func (l *Logger) Error(err error, messageFmt string, args ...interface{}) {
	logInternal(l.base(), LevelError, l.subsystem, err, messageFmt, args...)
}
