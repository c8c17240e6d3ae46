package observability

import (
	"log/slog"
	"os"
)

// Logger emits JSON lines on stdout. Only the transport boundary, bootstrap
// and maintenance paths log; the account core surfaces errors as values.
type Logger struct {
	base *slog.Logger
}

func NewLogger() *Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{base: slog.New(handler)}
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.base.Info(message, attrs(fields)...)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.base.Error(message, attrs(fields)...)
}

func attrs(fields map[string]any) []any {
	out := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		out = append(out, slog.Any(key, value))
	}
	return out
}
