package cmd

import (
	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	grpcsrv "github.com/batata-io/batata/infra/server/grpc"
	httpsrv "github.com/batata-io/batata/infra/server/http"
	wssrv "github.com/batata-io/batata/infra/server/ws"
	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/consensus"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/stream"
	"github.com/batata-io/batata/internal/domain/subscription"
	"github.com/batata-io/batata/internal/handler/configh"
	"github.com/batata-io/batata/internal/handler/internalh"
	"github.com/batata-io/batata/internal/handler/namingh"
	"github.com/batata-io/batata/internal/store"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/wiring"
)

// NewApp wires every domain, handler, and infra module into one fx.App,
// the same top-to-bottom module-composition shape the teacher's NewApp
// uses for its hub/store/transport trio, generalized to this node's
// larger component set.
func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(func() *config.Config { return cfg }),

		telemetry.Module,
		connection.Module,
		stream.Module,
		store.Module,
		consensus.Module,
		subscription.Module,
		push.Module,
		naming.Module,
		configengine.Module,
		dispatch.Module,

		internalh.Module,
		configh.Module,
		namingh.Module,

		wiring.Module,
		grpcsrv.Module,
		httpsrv.Module,
		wssrv.Module,
	)
}
