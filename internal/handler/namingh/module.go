package namingh

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/consensus"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/subscription"
)

func newSpecs(reg naming.Registrar, idx *subscription.Index, pusher *push.Dispatcher, bridge *consensus.Bridge, logger *slog.Logger, cfg *config.Config) ([]dispatch.HandlerSpec, *watchTracker) {
	h, t := NewHandlers(reg, idx, pusher, bridge, logger, cfg.Naming.MaxPushInstances)
	return New(h), t
}

var Module = fx.Module("handler.naming",
	fx.Provide(
		fx.Annotate(newSpecs, fx.ResultTags(`group:"handler_specs,flatten"`, "")),
	),
	// A closed connection's ongoing fuzzy-watch subscriptions are owned
	// by this package (the registry's fuzzyIndex channels are opened
	// per-handler-call, not per-connection), so this package's own
	// close-cascade entry unwinds them the same way configh's does for
	// config fuzzy watches.
	fx.Invoke(func(lc fx.Lifecycle, reg connection.Registrar, t *watchTracker) {
		ch, unsub := reg.Subscribe(64)
		stop := make(chan struct{})
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					for {
						select {
						case ev, ok := <-ch:
							if !ok {
								return
							}
							if ev.Kind == connection.EventClosed {
								t.cancel(ev.ID.String())
							}
						case <-stop:
							return
						}
					}
				}()
				return nil
			},
			OnStop: func(context.Context) error {
				close(stop)
				unsub()
				return nil
			},
		})
	}),
)
