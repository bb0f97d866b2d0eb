package dispatch

import (
	"context"

	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/domain/connection"
)

func newLimiterSet(cfg *config.Config) *LimiterSet {
	d := cfg.Dispatch
	return NewLimiterSet(d.ConnRateLimit, d.ConnRateBurst, d.HandlerRateLimit, d.HandlerRateBurst)
}

// newRegistry assembles the dispatch Registry from every HandlerSpec
// contributed by the handler packages (internalh/configh/namingh), each
// of which feeds this "handler_specs" value group rather than importing
// dispatch.NewRegistry directly.
func newRegistry(specs []HandlerSpec) *Registry { return NewRegistry(specs...) }

var Module = fx.Module("dispatch",
	fx.Provide(
		newLimiterSet,
		NewPolicyAuthorizer,
		fx.Annotate(
			func(a *PolicyAuthorizer) Authorizer { return a },
			fx.As(new(Authorizer)),
		),
		fx.Annotate(newRegistry, fx.ParamTags(`group:"handler_specs"`)),
		NewDispatcher,
	),
	// watchConnectionClose frees a closed connection's rate-limit bucket,
	// the dispatch-side counterpart of the teacher's evictor reclaiming a
	// Cell once its owning user disconnects.
	fx.Invoke(func(lc fx.Lifecycle, reg connection.Registrar, limiters *LimiterSet) {
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
								limiters.ForgetConnection(ev.ID)
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
