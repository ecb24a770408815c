package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pscheid92/hoodpulse/internal/platform/correlation"
	"github.com/pscheid92/hoodpulse/internal/platform/version"
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a correlation-aware logger writing to w. format is "json" or "text".
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(correlation.NewHandler(handler))
}

// Init installs a stdout logger as the slog default, tagged with the service name and version.
func Init(service, level, format string) *slog.Logger {
	logger := New(os.Stdout, level, format).With("service", service, "version", version.Version)
	slog.SetDefault(logger)
	return logger
}
