package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Mani87-nq/yardbooks-web-sub010/internal/infrastructure/config"
)

// Logger wraps slog.Logger with the service/version fields every YardBooks
// log line carries. Safe for concurrent use; derive per-component loggers
// with With rather than sharing attribute state.
type Logger struct {
	*slog.Logger
}

// New builds a logger from the logging section of config.yaml: format
// (JSON in production, text for local development), minimum level,
// destination, and the default service/version attributes.
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer
	switch strings.ToLower(cfg.Output) {
	case "stderr":
		output = os.Stderr
	default:
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", "yardbooks"),
		slog.String("version", version),
	})

	return &Logger{
		Logger: slog.New(handler),
	}
}

// parseLevel maps the config strings debug/info/warn/error to slog levels.
// Anything unrecognised falls back to info.
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

// With returns a child logger carrying extra default attributes:
//
//	apiLogger := logger.With("component", "api")
//	apiLogger.Info("listening") // includes component=api
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Default returns a stdout/JSON/info logger for the window before
// config.Load has run. Startup errors still need somewhere to go.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
