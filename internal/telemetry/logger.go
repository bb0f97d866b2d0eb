// Package telemetry builds the process-wide logging and metrics handles
// once at startup. Per the teacher's ProvideLogger wiring (cmd/fx.go), the
// root *slog.Logger is constructed a single time and injected everywhere
// via Fx; nothing below mutates it after construction.
package telemetry

import (
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

// LogConfig controls the root logger's verbosity, format, and whether logs
// are also bridged through the otel log pipeline for trace correlation.
type LogConfig struct {
	Level string // debug|info|warn|error
	JSON bool
	Otel bool
	Source string // service name used as the otel instrumentation scope
}

// NewLogger builds the root *slog.Logger. The teacher wires
// go.opentelemetry.io/contrib/bridges/otelslog directly for exactly this
// purpose: when cfg.Otel is set, every log record is also emitted through
// the otel log SDK so it carries trace/span IDs from the ambient context.
func NewLogger(cfg LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	if cfg.Otel {
		source := cfg.Source
		if source == "" {
			source = "batata"
		}
		handler = multiHandler{handler, otelslog.NewHandler(source)}
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
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

// NewFallbackLogger is used before config is parsed (e.g. while handling
// CLI flag errors) so early-startup failures still go somewhere.
func NewFallbackLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
}
