package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// ServiceLogger is the logging contract shared by the gateway, the bus and the
// bridge. It maps directly onto Watermill's LoggerAdapter so the same logger can
// be handed to transports.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// Log output formats accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var logLevelMapping = map[slog.Level]slog.Level{
	slog.LevelDebug: slog.LevelDebug,
	slog.LevelInfo:  slog.LevelInfo,
	slog.LevelWarn:  slog.LevelWarn,
	slog.LevelError: slog.LevelError,
}

// ParseLevel maps debug, info, warn or error (any case) onto a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug", "trace":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a slog backed ServiceLogger writing to w in the given format.
func New(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, FormatJSON) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() ServiceLogger {
	return serviceLogger{wm: watermill.NopLogger{}}
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("protogate: slog logger cannot be nil")
	}
	return NewWatermillServiceLogger(watermill.NewSlogLoggerWithLevelMapping(log, logLevelMapping))
}

// NewWatermillServiceLogger wraps an existing Watermill LoggerAdapter. An
// adapter made by NewWatermillAdapter is unwrapped instead.
func NewWatermillServiceLogger(logger watermill.LoggerAdapter) ServiceLogger {
	if logger == nil {
		panic("protogate: watermill logger cannot be nil")
	}
	if a, ok := logger.(watermillAdapter); ok {
		return a.log
	}
	return serviceLogger{wm: logger}
}

// NewWatermillAdapter converts a ServiceLogger into a Watermill LoggerAdapter so
// bridge transports log through the same pipeline as the gateway.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("protogate: ServiceLogger cannot be nil")
	}
	if s, ok := log.(serviceLogger); ok {
		return s.wm
	}
	return watermillAdapter{log: log}
}

type serviceLogger struct {
	wm watermill.LoggerAdapter
}

func (s serviceLogger) With(fields LogFields) ServiceLogger {
	return serviceLogger{wm: s.wm.With(watermill.LogFields(fields))}
}

func (s serviceLogger) Debug(msg string, fields LogFields) { s.wm.Debug(msg, watermill.LogFields(fields)) }
func (s serviceLogger) Info(msg string, fields LogFields) { s.wm.Info(msg, watermill.LogFields(fields)) }
func (s serviceLogger) Trace(msg string, fields LogFields) { s.wm.Trace(msg, watermill.LogFields(fields)) }

func (s serviceLogger) Error(msg string, err error, fields LogFields) {
	s.wm.Error(msg, err, watermill.LogFields(fields))
}

type watermillAdapter struct {
	log ServiceLogger
}

func (a watermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillAdapter{log: a.log.With(LogFields(fields))}
}

func (a watermillAdapter) Debug(msg string, fields watermill.LogFields) { a.log.Debug(msg, LogFields(fields)) }
func (a watermillAdapter) Info(msg string, fields watermill.LogFields) { a.log.Info(msg, LogFields(fields)) }
func (a watermillAdapter) Trace(msg string, fields watermill.LogFields) { a.log.Trace(msg, LogFields(fields)) }

func (a watermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.log.Error(msg, err, LogFields(fields))
}
