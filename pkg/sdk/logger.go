package sdk

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogType defines the output format of logs
type LogType string

const (
	StringLog LogType = "STRING"
	JSONLog   LogType = "JSON"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// LogContext holds contextual information attached to every entry
type LogContext struct {
	Database   string `json:"database"`
	Collection string `json:"collection"`
	Operation  string `json:"operation"`
	RequestID  string `json:"request_id"`
}

// LogConfig defines the logger configuration
type LogConfig struct {
	LogType LogType
	Level   LogLevel
	// Output defaults to stdout
	Output io.Writer
}

// Logger is the main logger instance
type Logger struct {
	config  LogConfig
	context LogContext
	zl      zerolog.Logger
}

// NewLogger creates a new logger instance with the given configuration and context
func NewLogger(cfg LogConfig, ctx LogContext) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.LogType == StringLog {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	}
	zl := zerolog.New(out).With().Timestamp().Logger().Level(toZerologLevel(cfg.Level))
	return &Logger{config: cfg, context: ctx, zl: zl}
}

// NopLogger discards everything; used when callers pass no logger.
func NopLogger() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// SetContext updates the logger's context
func (l *Logger) SetContext(ctx LogContext) {
	l.context = ctx
}

// GetContext returns the current logger context
func (l *Logger) GetContext() LogContext {
	return l.context
}

// With returns a copy of the logger whose context is the current one merged with ctx.
func (l *Logger) With(ctx LogContext) *Logger {
	merged := l.context
	if ctx.Database != "" {
		merged.Database = ctx.Database
	}
	if ctx.Collection != "" {
		merged.Collection = ctx.Collection
	}
	if ctx.Operation != "" {
		merged.Operation = ctx.Operation
	}
	if ctx.RequestID != "" {
		merged.RequestID = ctx.RequestID
	}
	return &Logger{config: l.config, context: merged, zl: l.zl}
}

func (l *Logger) log(level LogLevel, msg string, extra map[string]interface{}) {
	var event *zerolog.Event
	switch level {
	case DEBUG:
		event = l.zl.Debug()
	case WARN:
		event = l.zl.Warn()
	case ERROR:
		event = l.zl.Error()
	default:
		event = l.zl.Info()
	}
	if event == nil {
		return
	}

	if l.context.Database != "" {
		event = event.Str("database", l.context.Database)
	}
	if l.context.Collection != "" {
		event = event.Str("collection", l.context.Collection)
	}
	if l.context.Operation != "" {
		event = event.Str("operation", l.context.Operation)
	}
	if l.context.RequestID != "" {
		event = event.Str("request_id", l.context.RequestID)
	}
	if len(extra) > 0 {
		event = event.Fields(extra)
	}
	event.Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string) {
	l.log(DEBUG, msg, nil)
}

// DebugWithFields logs a debug message with additional fields
func (l *Logger) DebugWithFields(msg string, fields map[string]interface{}) {
	l.log(DEBUG, msg, fields)
}

// Info logs an info message
func (l *Logger) Info(msg string) {
	l.log(INFO, msg, nil)
}

// InfoWithFields logs an info message with additional fields
func (l *Logger) InfoWithFields(msg string, fields map[string]interface{}) {
	l.log(INFO, msg, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string) {
	l.log(WARN, msg, nil)
}

// WarnWithFields logs a warning message with additional fields
func (l *Logger) WarnWithFields(msg string, fields map[string]interface{}) {
	l.log(WARN, msg, fields)
}

// Error logs an error message
func (l *Logger) Error(msg string) {
	l.log(ERROR, msg, nil)
}

// ErrorWithFields logs an error message with additional fields
func (l *Logger) ErrorWithFields(msg string, fields map[string]interface{}) {
	l.log(ERROR, msg, fields)
}

// ErrorWithStackTrace logs an error with stack trace
func (l *Logger) ErrorWithStackTrace(err error) {
	if err == nil {
		return
	}

	stackTrace := captureStackTrace(3) // Skip 3 frames: captureStackTrace, ErrorWithStackTrace, and the runtime

	fields := map[string]interface{}{
		"error":       err.Error(),
		"stack_trace": stackTrace,
	}

	l.log(ERROR, "Error occurred", fields)
}

func toZerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// captureStackTrace captures the current stack trace
func captureStackTrace(skip int) []string {
	const maxStackDepth = 32
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip, pcs)

	frames := runtime.CallersFrames(pcs[:n])
	var stackTrace []string

	for {
		frame, more := frames.Next()

		// Format: function at file:line
		trace := fmt.Sprintf("%s at %s:%d", frame.Function, shortenPath(frame.File), frame.Line)
		stackTrace = append(stackTrace, trace)

		if !more {
			break
		}
	}

	return stackTrace
}

// shortenPath shortens the file path to make it more readable
func shortenPath(path string) string {
	if idx := strings.LastIndex(path, "/pkg/mod/"); idx != -1 {
		return path[idx+9:]
	}
	// Return last 2 path components if possible
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return strings.Join(parts[len(parts)-2:], "/")
	}
	return path
}
