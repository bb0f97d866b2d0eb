package naming

import (
	"context"

	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/domain/subscription"
	"github.com/batata-io/batata/internal/transport"
)

// Registrar is the external surface other components depend on.
type Registrar interface {
	Register(key transport.ServiceKey, op transport.InstanceOp, in Instance) uint64
	BatchRegister(key transport.ServiceKey, op transport.InstanceOp, instances []transport.InstanceDTO) (uint64, error)
	Query(key transport.ServiceKey, clusters []string, healthyOnly bool) ([]transport.InstanceDTO, uint64)
	List(namespace, group, pattern string, offset, pageSize int) ([]string, int, bool)
	DeregisterByConnection(connID string)
	FuzzyWatch(namespace, pattern string, subscribe bool) []string
	SubscribeFuzzy(namespace, pattern string) (<-chan transport.NamingFuzzyWatchSync, func())
}

var _ Registrar = (*Registry)(nil)

// EncodeServiceKey renders a ServiceKey as the opaque subject key shared
// with the Subscription Index and Push Dispatcher.
func EncodeServiceKey(key transport.ServiceKey) string {
	return key.Namespace + "|" + key.Group + "|" + key.Service
}

func newRegistry() *Registry { return NewRegistry() }

var Module = fx.Module("naming",
	fx.Provide(
		newRegistry,
		fx.Annotate(
			func(r *Registry) Registrar { return r },
			fx.As(new(Registrar)),
		),
	),
	// Wiring the registry's revision events into the Subscription Index
	// here (rather than inside Registry itself) keeps naming ignorant of
	// subscription's existence at the type level while still satisfying
	// "hands (service_key,..., revision) to the
	// Subscription Index" data flow.
	fx.Invoke(func(r *Registry, idx *subscription.Index) {
		r.OnChange(func(key transport.ServiceKey, rev uint64) {
			idx.Notify(subscription.Subject{Kind: subscription.KindService, Key: EncodeServiceKey(key)}, rev)
		})
	}),
	fx.Invoke(func(lc fx.Lifecycle, r *Registry, cfg *config.Config) {
		stop := make(chan struct{})
		checker := NewHealthChecker(r, cfg.Naming.CheckPeriod.Duration)
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go checker.Run(stop)
				go r.runFuzzySync(cfg.Naming.SyncInterval.Duration, stop)
				return nil
			},
			OnStop: func(context.Context) error {
				close(stop)
				return nil
			},
		})
	}),
)
