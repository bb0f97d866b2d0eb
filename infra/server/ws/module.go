package ws

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"go.uber.org/fx"

	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/subscription"
)

// Module mounts the legacy WebSocket compatibility surface onto the
// shared chi.Router provided by infra/server/http, the same "own handler
// package, shared mux" split the teacher uses between its lp and ws
// delivery handlers.
var Module = fx.Module("infra.ws",
	fx.Invoke(func(router chi.Router, naming naming.Registrar, index *subscription.Index, engine *configengine.Engine, pusher *push.Dispatcher, logger *slog.Logger) {
		h := Handlers{Naming: naming, Index: index, Engine: engine, Pusher: pusher, Logger: logger}
		router.Get("/ws/naming", h.ServeNaming)
		router.Get("/ws/config", h.ServeConfig)
	}),
)
