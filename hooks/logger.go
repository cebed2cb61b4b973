package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Skryldev/image-optimizer/core"
)

// ── slog adapter ──────────────────────────────────────────────────────────────

// SlogLogger wraps the standard library slog.Logger to satisfy core.Logger.
type SlogLogger struct {
	log *slog.Logger
}

// NewSlogLogger creates a logger backed by slog.
func NewSlogLogger(l *slog.Logger) *SlogLogger { return &SlogLogger{log: l} }

// NewTextLogger returns a SlogLogger writing text records at or above level
// ("debug", "info", "warn", "error") to w.
func NewTextLogger(w io.Writer, level string) *SlogLogger {
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: slogLevel(level)})
	return NewSlogLogger(slog.New(h))
}

func (s *SlogLogger) Debug(msg string, fields ...interface{}) { s.log.Debug(msg, fields...) }
func (s *SlogLogger) Info(msg string, fields ...interface{})  { s.log.Info(msg, fields...) }
func (s *SlogLogger) Warn(msg string, fields ...interface{})  { s.log.Warn(msg, fields...) }
func (s *SlogLogger) Error(msg string, fields ...interface{}) { s.log.Error(msg, fields...) }

func slogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// ── logrus adapter ────────────────────────────────────────────────────────────

// LogrusLogger adapts a logrus entry to core.Logger.  Key/value pairs become
// logrus fields.
type LogrusLogger struct {
	entry *logrus.Entry
}

// NewLogrusLogger wraps e.
func NewLogrusLogger(e *logrus.Entry) *LogrusLogger { return &LogrusLogger{entry: e} }

func (l *LogrusLogger) Debug(msg string, fields ...interface{}) { l.with(fields).Debug(msg) }
func (l *LogrusLogger) Info(msg string, fields ...interface{})  { l.with(fields).Info(msg) }
func (l *LogrusLogger) Warn(msg string, fields ...interface{})  { l.with(fields).Warn(msg) }
func (l *LogrusLogger) Error(msg string, fields ...interface{}) { l.with(fields).Error(msg) }

func (l *LogrusLogger) with(fields []interface{}) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	f := make(logrus.Fields, len(fields)/2+1)
	for i := 0; i < len(fields); i += 2 {
		key := fmt.Sprint(fields[i])
		if i+1 == len(fields) {
			f["!BADKEY"] = fields[i]
			break
		}
		f[key] = fields[i+1]
	}
	return l.entry.WithFields(f)
}

type ctxKey int

const ctxKeyLog ctxKey = iota

// WithLogEntry stores e in ctx for Entry.
func WithLogEntry(ctx context.Context, e *logrus.Entry) context.Context {
	return context.WithValue(ctx, ctxKeyLog, e)
}

// Entry returns the logrus entry stored in ctx, or the standard logger's
// entry when none was stored.
func Entry(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(ctxKeyLog).(*logrus.Entry); ok {
		return e
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

var (
	_ core.Logger = (*SlogLogger)(nil)
	_ core.Logger = (*LogrusLogger)(nil)
)
