package configengine

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/store"
	"github.com/batata-io/batata/internal/telemetry"
)

func newEngine(cfg *config.Config, cs store.ConfigStore, pusher Pusher, metrics *telemetry.Metrics, logger *slog.Logger) *Engine {
	return New(cs, cfg.Config_.ListenTimeout.Duration, cfg.NodeID, pusher, metrics, logger)
}

var Module = fx.Module("configengine",
	fx.Provide(
		newEngine,
		fx.Annotate(func(d *push.Dispatcher) Pusher { return d }, fx.As(new(Pusher))),
	),
	fx.Invoke(func(lc fx.Lifecycle, e *Engine, cfg *config.Config, logger *slog.Logger) error {
		stop := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go e.RunFuzzySync(cfg.Config_.FuzzySyncInterval.Duration, stop)
				return nil
			},
			OnStop: func(context.Context) error {
				close(stop)
				return nil
			},
		})

		if cfg.Config_.ClusterSyncAMQP == "" {
			return nil
		}
		cs, err := NewClusterSync(cfg.Config_.ClusterSyncAMQP, cfg.NodeID, logger)
		if err != nil {
			return err
		}
		e.AttachClusterSync(cs)

		ctx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					if err := cs.Run(ctx); err != nil && ctx.Err() == nil {
						logger.Error("cluster sync consumer exited", "error", err)
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return cs.Close()
			},
		})
		return nil
	}),
)
