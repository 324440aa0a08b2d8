// internal/logger/logger.go
package logger

import (
	"log/slog"
	"os"
)

// New returns a structured logger emitting JSON to stdout.
func New() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		AddSource: false,
	})
	return slog.New(handler)
}
