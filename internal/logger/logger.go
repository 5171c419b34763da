// Package logger provides structured logging for contentvc
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with contentvc-specific helpers
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// ParseLevel maps a config string onto a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch s {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	}
	return zerolog.InfoLevel
}

// NewLogger creates a new structured logger
func NewLogger(cfg Config) *Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Pretty printing for development
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", "contentvc").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// Nop returns a logger that discards everything
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// Zerolog returns the underlying zerolog logger
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// WithFields returns a logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// RepoLogger returns a logger scoped to one repository
func (l *Logger) RepoLogger(repositoryID string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "vcs").
			Str("repository_id", repositoryID).
			Logger(),
	}
}

// StoreLogger returns a logger for a storage backend
func (l *Logger) StoreLogger(driver string) *Logger {
	return &Logger{
		zlog: l.zlog.With().
			Str("component", "store").
			Str("driver", driver).
			Logger(),
	}
}

// LogOperation logs a completed engine operation with structured fields
func (l *Logger) LogOperation(operation string, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("operation", operation).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("Operation completed")
}

// LogAuditFailure logs an audit event that could not be delivered
func (l *Logger) LogAuditFailure(operation, versionID string, err error) {
	l.zlog.Warn().
		Str("event", "audit_failure").
		Str("operation", operation).
		Str("version_id", versionID).
		Err(err).
		Msg("Audit event dropped")
}

// LogStartup logs the resolved storage configuration
func (l *Logger) LogStartup(driver, path string) {
	l.zlog.Info().
		Str("event", "startup").
		Str("driver", driver).
		Str("path", path).
		Msg("contentvc engine starting")
}

// LogShutdown logs engine shutdown
func (l *Logger) LogShutdown() {
	l.zlog.Info().
		Str("event", "shutdown").
		Msg("contentvc engine shutting down")
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.Zerolog()
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
