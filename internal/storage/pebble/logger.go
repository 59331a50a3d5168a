package pebble

import (
	"context"
	"fmt"
	"log/slog"
	"os"
)

// Logger routes pebble's log output into a slog.Logger. It implements
// pebble.LoggerAndTracer with tracing disabled.
type Logger struct {
	*slog.Logger
}

// NewLogger returns a Logger tagged with the storage component.
func NewLogger(l *slog.Logger) *Logger {
	return &Logger{Logger: l.With("component", "pebble")}
}

func (l *Logger) Infof(format string, args ...any) {
	l.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
}

// Fatalf logs and exits, as pebble expects it not to return.
func (l *Logger) Fatalf(format string, args ...any) {
	l.Error(fmt.Sprintf(format, args...))
	os.Exit(1)
}

func (l *Logger) Eventf(ctx context.Context, format string, args ...any) {}

func (l *Logger) IsTracingEnabled(ctx context.Context) bool {
	return false
}
