package configh

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/push"
)

func newSpecs(engine *configengine.Engine, pusher *push.Dispatcher, logger *slog.Logger) ([]dispatch.HandlerSpec, *fuzzyTracker) {
	h, t := NewHandlers(engine, pusher, logger)
	return New(h), t
}

var Module = fx.Module("handler.config",
	fx.Provide(
		fx.Annotate(newSpecs, fx.ResultTags(`group:"handler_specs,flatten"`, "")),
	),
	// A closed connection's retained ConfigFuzzyWatch subscriptions are
	// owned by this package; unwind them the same way the connection
	// close cascade unwinds naming's fuzzy watches and the Subscription
	// Index's ordinary subscriptions (internal/wiring.Module).
	fx.Invoke(func(lc fx.Lifecycle, reg connection.Registrar, t *fuzzyTracker) {
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
