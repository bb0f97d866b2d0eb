package store

import (
	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
)

func newConfigStore(cfg *config.Config) ConfigStore {
	return NewBreakerStore(NewMemory(cfg.Config_.HistoryLimit), "config-store")
}

var Module = fx.Module("store", fx.Provide(newConfigStore))
