// Package logging provides the structured logger shared by every component.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Fields carries structured key/value pairs attached to a log line.
type Fields map[string]interface{}

// WithField builds a single-entry field set.
func WithField(key string, value interface{}) Fields {
	return Fields{key: value}
}

// WithFields copies m into a field set.
func WithFields(m map[string]interface{}) Fields {
	f := make(Fields, len(m))
	for k, v := range m {
		f[k] = v
	}
	return f
}

type Logger struct {
	handler slog.Handler
	base    Fields
}

// New creates a JSON logger on stdout filtered at level.
func New(level Level) *Logger {
	return NewWithWriter(os.Stdout, level)
}

func NewWithWriter(w io.Writer, level Level) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level.slog()})
	return &Logger{handler: handler}
}

// ParseLevel maps "debug", "warn", "error" to their levels; anything else is info.
func ParseLevel(value string) Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// With returns a child logger that always carries fields.
func (l *Logger) With(fields Fields) *Logger {
	merged := make(Fields, len(l.base)+len(fields))
	for k, v := range l.base {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{handler: l.handler, base: merged}
}

func (l *Logger) Debug(msg string, fields ...Fields) { l.log(slog.LevelDebug, msg, fields) }
func (l *Logger) Info(msg string, fields ...Fields)  { l.log(slog.LevelInfo, msg, fields) }
func (l *Logger) Warn(msg string, fields ...Fields)  { l.log(slog.LevelWarn, msg, fields) }
func (l *Logger) Error(msg string, fields ...Fields) { l.log(slog.LevelError, msg, fields) }

func (l *Logger) log(level slog.Level, msg string, fields []Fields) {
	if l == nil || l.handler == nil {
		return
	}
	ctx := context.Background()
	if !l.handler.Enabled(ctx, level) {
		return
	}

	merged := make(Fields, len(l.base))
	for k, v := range l.base {
		merged[k] = v
	}
	for _, f := range fields {
		for k, v := range f {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, slog.Any(k, merged[k]))
	}

	slog.New(l.handler).LogAttrs(ctx, level, msg, attrs...)
}

func (lv Level) slog() slog.Level {
	switch lv {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
