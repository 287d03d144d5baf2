// Package logging provides the structured logger shared by every component
// of the trip detection core, wrapping log/slog.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a logging verbosity threshold.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	Level      LogLevel
	Format     string // "json" or "text"
	Output     io.Writer
	AddSource  bool
	TimeFormat string
}

// DefaultConfig returns the default logger configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     "json",
		Output:     os.Stdout,
		AddSource:  true,
		TimeFormat: time.RFC3339,
	}
}

// Logger wraps slog.Logger with the core's domain-specific log helpers.
type Logger struct {
	*slog.Logger
	config *Config
}

// New creates a structured logger per cfg.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var level slog.Level
	switch cfg.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level, AddSource: cfg.AddSource}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	return &Logger{Logger: slog.New(handler), config: cfg}
}

// WithContext returns a logger carrying request/VIN context fields.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	return &Logger{Logger: l.Logger.With(contextFields(ctx)...), config: l.config}
}

// WithFields returns a logger with additional fields attached.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return &Logger{Logger: l.Logger.With(args...), config: l.config}
}

// LogHTTPRequest logs a completed HTTP request.
func (l *Logger) LogHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	l.LogAttrs(context.Background(), slog.LevelInfo, "http request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", statusCode),
		slog.Duration("duration", duration),
	)
}

// LogEventIngested logs a telemetry event accepted into the event store.
func (l *Logger) LogEventIngested(vin, source, eventID string) {
	l.Info("event ingested", "vin", vin, "source", source, "event_id", eventID)
}

// LogTripTransition logs a trip lifecycle transition for a VIN.
func (l *Logger) LogTripTransition(vin, transition string, fields map[string]interface{}) {
	args := []interface{}{"vin", vin, "transition", transition}
	for k, v := range fields {
		args = append(args, k, v)
	}
	l.Info("trip transition", args...)
}

// LogJobExecution logs a scheduled loop's (dispatcher/reaper/retention) tick.
func (l *Logger) LogJobExecution(jobName string, duration time.Duration, err error) {
	args := []interface{}{"job", jobName, "duration", duration}
	if err != nil {
		args = append(args, "error", err)
		l.Error("job tick failed", args...)
		return
	}
	l.Debug("job tick completed", args...)
}

// LogCollaboratorCall logs an outbound call to a collaborator (geocoder,
// road-snapper, upstream provider).
func (l *Logger) LogCollaboratorCall(name string, duration time.Duration, err error) {
	args := []interface{}{"collaborator", name, "duration", duration}
	if err != nil {
		args = append(args, "error", err)
		l.Warn("collaborator call failed", args...)
		return
	}
	l.Debug("collaborator call succeeded", args...)
}

func contextFields(ctx context.Context) []interface{} {
	fields := make([]interface{}, 0, 4)
	if requestID := ctx.Value(ctxKeyRequestID); requestID != nil {
		fields = append(fields, "request_id", requestID)
	}
	if vin := ctx.Value(ctxKeyVIN); vin != nil {
		fields = append(fields, "vin", vin)
	}
	return fields
}

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyVIN
)

// WithRequestID returns a context carrying a request ID for log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// WithVIN returns a context carrying a VIN for log correlation.
func WithVIN(ctx context.Context, vin string) context.Context {
	return context.WithValue(ctx, ctxKeyVIN, vin)
}

var defaultLogger *Logger

// Init sets the package-level default logger.
func Init(cfg *Config) {
	defaultLogger = New(cfg)
}

// Default returns the package-level logger, creating one with defaults if
// Init was never called.
func Default() *Logger {
	if defaultLogger == nil {
		defaultLogger = New(DefaultConfig())
	}
	return defaultLogger
}
