package antrian

import (
	"log/slog"
	"os"
	"strings"
)

// Logger is the minimal structured logger used by every component.
// keyvals are alternating key / value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// SlogLogger adapts *slog.Logger to Logger.
type SlogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps an existing slog logger.
func NewSlogLogger(l *slog.Logger) *SlogLogger {
	if l == nil {
		l = slog.Default()
	}
	return &SlogLogger{l: l}
}

// NewSimpleLogger returns a debug-level text logger writing to stderr.
func NewSimpleLogger() *SlogLogger {
	return NewLeveledLogger("debug", "text")
}

// NewLeveledLogger builds a stderr logger for a level (debug, info, warn,
// error) and format (text, json). Unknown values fall back to info / text.
func NewLeveledLogger(level, format string) *SlogLogger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return &SlogLogger{l: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a logger that always attaches keyvals.
func (s *SlogLogger) With(keyvals ...any) *SlogLogger {
	return &SlogLogger{l: s.l.With(keyvals...)}
}

func (s *SlogLogger) Debug(msg string, keyvals ...any) { s.l.Debug(msg, keyvals...) }
func (s *SlogLogger) Info(msg string, keyvals ...any)  { s.l.Info(msg, keyvals...) }
func (s *SlogLogger) Warn(msg string, keyvals ...any)  { s.l.Warn(msg, keyvals...) }
func (s *SlogLogger) Error(msg string, keyvals ...any) { s.l.Error(msg, keyvals...) }

// nopLogger discards everything.
type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

func orNop(l Logger) Logger {
	if l == nil {
		return nopLogger{}
	}
	return l
}
