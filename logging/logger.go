// Package logging provides a tiny abstraction over slog so downstream code
// can depend on a minimal interface (Logger) while allowing users to plug
// any structured logger. It also offers a richer RosterflowLogger with
// contextual helpers (session, turn, component) and domain specific helpers
// for actions, jobs and turns.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled
// from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string ("debug", "info", ...) to a LogLevel,
// defaulting to info for unknown values.
func ParseLevel(s string) LogLevel {
	switch s {
	case "debug", "DEBUG":
		return LogLevelDebug
	case "warn", "WARN":
		return LogLevelWarn
	case "error", "ERROR":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface for rosterflow. Args follow
// the slog key/value convention.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// LoggerConfig configures construction of a RosterflowLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
	SessionID string
	TurnID    string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true}
}

// RosterflowLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It is cheap to copy via With* methods.
type RosterflowLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	sessionID string
	turnID    string
}

// NewLogger builds a RosterflowLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *RosterflowLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &RosterflowLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component, sessionID: cfg.SessionID, turnID: cfg.TurnID}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithComponent sets the logical component (orchestrator, dispatcher, jobs, httpapi).
func (l *RosterflowLogger) WithComponent(c string) *RosterflowLogger {
	nl := *l
	nl.component = c
	return &nl
}

// WithSession attaches session and turn identifiers.
func (l *RosterflowLogger) WithSession(sessionID, turnID string) *RosterflowLogger {
	nl := *l
	nl.sessionID = sessionID
	nl.turnID = turnID
	return &nl
}

func (l *RosterflowLogger) attrs(extra []any) []slog.Attr {
	out := make([]slog.Attr, 0, len(extra)/2+3)
	if l.component != "" {
		out = append(out, slog.String("component", l.component))
	}
	if l.sessionID != "" {
		out = append(out, slog.String("session_id", l.sessionID))
	}
	if l.turnID != "" {
		out = append(out, slog.String("turn_id", l.turnID))
	}
	for i := 0; i+1 < len(extra); i += 2 {
		key, ok := extra[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", extra[i])
		}
		out = append(out, slog.Any(key, extra[i+1]))
	}
	return out
}

func (l *RosterflowLogger) log(level slog.Level, allowed bool, msg string, args ...any) {
	if !allowed {
		return
	}
	l.logger.LogAttrs(context.Background(), level, msg, l.attrs(args)...)
}

// Debug logs at debug level.
func (l *RosterflowLogger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *RosterflowLogger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *RosterflowLogger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *RosterflowLogger) Error(msg string, args ...any) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogActionCall records execution details for a dispatched action.
func (l *RosterflowLogger) LogActionCall(action string, dur time.Duration, success bool, err error) {
	args := []any{"action", action, "duration_ms", dur.Milliseconds(), "success", success}
	if err != nil {
		args = append(args, "error", err.Error())
	}
	if success {
		l.Info("action completed", args...)
		return
	}
	l.Error("action failed", args...)
}

// LogJobTransition records an async job status change.
func (l *RosterflowLogger) LogJobTransition(jobID, from, to string) {
	l.Info("job transition", "job_id", jobID, "from", from, "to", to)
}

// LogTurn records aggregate per-turn metrics.
func (l *RosterflowLogger) LogTurn(sessionID, marker string, dur time.Duration) {
	l.Info("turn completed", "session_id", sessionID, "position", marker, "duration_ms", dur.Milliseconds())
}

// NoOpLogger discards all log messages. Useful for testing or when logging
// is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}
