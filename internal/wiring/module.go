// Package wiring holds fx.Invoke wiring that spans more than one domain
// package and so cannot live in any single package's own module.go without
// introducing an import it doesn't otherwise need.
package wiring

import (
	"context"

	"go.uber.org/fx"

	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/subscription"
)

// Module wires the connection-close cascade: one
// EventClosed fans out to every component that still holds state keyed by
// that connection id, mirroring the teacher's evictor tearing down a
// disconnected user's Cell across every subsystem that indexed it.
var Module = fx.Module("wiring",
	fx.Invoke(func(lc fx.Lifecycle, reg connection.Registrar, naming naming.Registrar, subs *subscription.Index, pusher *push.Dispatcher, cfgEngine *configengine.Engine) {
		ch, unsub := reg.Subscribe(256)
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
							if ev.Kind != connection.EventClosed {
								continue
							}
							connID := ev.ID.String()
							naming.DeregisterByConnection(connID)
							subs.UnsubscribeConn(connID)
							pusher.Detach(connID)
							cfgEngine.CancelConn(connID)
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
	replicateModule,
)
