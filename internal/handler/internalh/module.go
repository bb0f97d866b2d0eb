package internalh

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/consensus"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/push"
)

func newSpecs(conn connection.Registrar, pusher *push.Dispatcher, bridge *consensus.Bridge, logger *slog.Logger) []dispatch.HandlerSpec {
	return New(Handlers{Conn: conn, Pusher: pusher, Bridge: bridge, Logger: logger})
}

var Module = fx.Module("handler.internal",
	fx.Provide(
		fx.Annotate(newSpecs, fx.ResultTags(`group:"handler_specs,flatten"`)),
	),
)
