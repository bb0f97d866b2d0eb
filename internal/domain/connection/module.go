package connection

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
)

// Registrar is the external API the Stream Multiplexer and Handler
// Dispatch depend on, mirroring the teacher's Hubber split between
// interface and concrete *Hub.
type Registrar interface {
	Register(meta Metadata) *Connection
	Get(id ID) (*Connection, bool)
	Touch(id ID)
	MarkUnhealthy(id ID)
	Evict(id ID, reason string)
	Drain(id ID) bool
	DrainTimeout() time.Duration
	IterByLabel(selector map[string]string) []ID
	Subscribe(buffer int) (<-chan Event, func())
	EvictionOrder() []ID
	Count() int
	Shutdown()
}

var _ Registrar = (*Registry)(nil)

func newRegistry(cfg *config.Config) *Registry {
	s := cfg.Session
	return New(
		WithProbeInterval(s.ProbeInterval.Duration),
		WithProbeTimeout(s.ProbeTimeout.Duration),
		WithDrainTimeout(s.DrainTimeout.Duration),
	)
}

var Module = fx.Module("connection",
	fx.Provide(
		newRegistry,
		fx.Annotate(
			func(r *Registry) Registrar { return r },
			fx.As(new(Registrar)),
		),
	),
	fx.Invoke(func(lc fx.Lifecycle, r *Registry) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				r.Shutdown()
				return nil
			},
		})
	}),
)
