package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
)

// Logger provides leveled logging throughout the application.
// Messages are printf-style; structured attributes are attached with With.
type Logger struct {
	slog *slog.Logger
}

// LoggerOptions controls the handler behind a Logger.
type LoggerOptions struct {
	Writer io.Writer
	Level  string
	JSON   bool
}

// NewLogger creates a Logger writing coloured output to stdout at info level.
func NewLogger() *Logger {
	return NewLoggerWithOptions(LoggerOptions{})
}

// NewLoggerWithOptions creates a Logger backed by a tint handler, or a JSON
// handler when opts.JSON is set.
func NewLoggerWithOptions(opts LoggerOptions) *Logger {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	level := parseLevel(opts.Level)

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02 15:04:05",
		})
	}
	return &Logger{slog: slog.New(handler)}
}

// NewNopLogger returns a Logger that discards everything. Used by tests.
func NewNopLogger() *Logger {
	return NewLoggerWithOptions(LoggerOptions{Writer: io.Discard, Level: "error"})
}

// With returns a Logger that adds the given key/value pairs to every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...)}
}

func (l *Logger) Info(format string, args ...any) {
	l.slog.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.slog.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.slog.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.slog.Debug(fmt.Sprintf(format, args...))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
