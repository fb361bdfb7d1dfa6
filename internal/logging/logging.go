// logging.go - Leveled structured logging for the service.
//
// JSON lines in production, human-readable console output in development.
// Callers pass a flat field map, the same shape everywhere in the codebase.
package logging

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Options selects the sink format and threshold.
type Options struct {
	Level  string
	Format string // "json" or "text"
	Env    string // "production" forces json
}

// Logger wraps a zerolog logger with the map-based field API.
type Logger struct {
	zl zerolog.Logger
}

var (
	mu sync.RWMutex
	// DefaultLogger is the global logger instance
	DefaultLogger = New(os.Stdout, Options{})
)

// New builds a logger writing to w.
func New(w io.Writer, opts Options) *Logger {
	out := w
	if opts.Format != "json" && opts.Env != "production" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	zl := zerolog.New(out).
		Level(parseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", "secure-transfer").
		Logger()
	return &Logger{zl: zl}
}

// Configure replaces DefaultLogger.
func Configure(w io.Writer, opts Options) {
	SetDefault(New(w, opts))
}

// SetDefault installs l as DefaultLogger.
func SetDefault(l *Logger) {
	mu.Lock()
	DefaultLogger = l
	mu.Unlock()
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return DefaultLogger
}

func parseLevel(level string) zerolog.Level {
	switch LogLevel(level) {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) emit(ev *zerolog.Event, msg string, fields map[string]any, err error) {
	if ev == nil {
		return
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg(msg)
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields map[string]any) {
	l.emit(l.zl.Debug(), msg, fields, nil)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields map[string]any) {
	l.emit(l.zl.Info(), msg, fields, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields map[string]any) {
	l.emit(l.zl.Warn(), msg, fields, nil)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields map[string]any, err error) {
	l.emit(l.zl.Error(), msg, fields, err)
}

func Debug(msg string, fields map[string]any) { current().Debug(msg, fields) }

func Info(msg string, fields map[string]any) { current().Info(msg, fields) }

func Warn(msg string, fields map[string]any) { current().Warn(msg, fields) }

func Error(msg string, fields map[string]any, err error) { current().Error(msg, fields, err) }

// Redact keeps a short prefix of an identifier so log lines can be
// correlated without recording the full value.
func Redact(s string) string {
	const keep = 6
	if len(s) <= keep {
		return "***"
	}
	return s[:keep] + "***"
}
