// Package logging provides structured logging for the development server
// built on log/slog, with per-component child loggers.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents different log levels
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the string representation of the log level
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
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name from configuration into a LogLevel.
// Unknown names fall back to info.
func ParseLevel(name string) LogLevel {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Logger interface for structured logging
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Fatal(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

type serverLogger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger creates a logger writing text records to w at the given level.
func NewLogger(w io.Writer, level LogLevel) Logger {
	handler := slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: slogLevel(level),
	})

	return &serverLogger{
		logger: slog.New(handler),
		level:  level,
	}
}

// NewDefaultLogger creates a stderr logger at the given named level.
func NewDefaultLogger(levelName string) Logger {
	return NewLogger(os.Stderr, ParseLevel(levelName))
}

func slogLevel(level LogLevel) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *serverLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.logger.DebugContext(ctx, msg, fields...)
}

func (l *serverLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.logger.InfoContext(ctx, msg, fields...)
}

func (l *serverLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.logger.WarnContext(ctx, msg, withError(err, fields)...)
}

func (l *serverLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.logger.ErrorContext(ctx, msg, withError(err, fields)...)
}

func (l *serverLogger) Fatal(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.logger.ErrorContext(ctx, msg, withError(err, fields)...)
	os.Exit(1)
}

func (l *serverLogger) With(fields ...interface{}) Logger {
	return &serverLogger{
		logger: l.logger.With(fields...),
		level:  l.level,
	}
}

func (l *serverLogger) WithComponent(component string) Logger {
	return l.With("component", component)
}

func withError(err error, fields []interface{}) []interface{} {
	if err == nil {
		return fields
	}

	return append([]interface{}{"error", err.Error()}, fields...)
}
