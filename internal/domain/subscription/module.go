package subscription

import (
	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/domain/push"
)

func newIndex(cfg *config.Config, dispatcher *push.Dispatcher) *Index {
	d := cfg.Dispatch
	return New(dispatcher, d.CoalesceWindow.Duration, d.MaxCoalesce.Duration)
}

var Module = fx.Module("subscription",
	fx.Provide(newIndex),
)
