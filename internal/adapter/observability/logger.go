// Package observability provides the shared JSON logger, Prometheus metrics,
// and per-target circuit breakers used across the supervisor.
package observability

import (
	"log/slog"
	"os"
	"strings"

	"github.com/fairyhunter13/autobank-supervisor/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	h := slog.NewJSONHandler(os.Stdout, opts)
	logger := slog.New(h).With(
		slog.String("service", "autobank-supervisor"),
		slog.String("env", cfg.AppEnv),
	)
	return logger
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
