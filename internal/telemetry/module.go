package telemetry

import (
	"context"
	"log/slog"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
)

// NewLoggerFromConfig adapts config.Config's Log section into the
// LogConfig NewLogger expects, the fx-providable entry point for the
// process-wide *slog.Logger.
func NewLoggerFromConfig(cfg *config.Config) *slog.Logger {
	return NewLogger(LogConfig{
		Level: cfg.Log.Level,
		JSON: cfg.Log.JSON,
		Otel: cfg.Log.Otel,
		Source: cfg.NodeID,
	})
}

func newMeterProvider(lc fx.Lifecycle) *sdkmetric.MeterProvider {
	mp := sdkmetric.NewMeterProvider()
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error { return mp.Shutdown(ctx) },
	})
	return mp
}

func newMetrics(mp *sdkmetric.MeterProvider) (*Metrics, error) {
	return NewMetrics(mp.Meter("batata"))
}

// Module provides the process-wide logger, meter provider, and metrics
// handle every other domain module depends on.
var Module = fx.Module("telemetry",
	fx.Provide(
		newMeterProvider,
		newMetrics,
		NewLoggerFromConfig,
	),
)
