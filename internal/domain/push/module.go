package push

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/telemetry"
)

func newDispatcher(cfg *config.Config, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	p := cfg.Push
	return NewDispatcher(p.MaxQueued, p.AckTimeout.Duration, p.MaxAttempts, p.InitialBackoff.Duration, p.MaxBackoff.Duration, metrics, logger)
}

var Module = fx.Module("push",
	fx.Provide(newDispatcher),
)
