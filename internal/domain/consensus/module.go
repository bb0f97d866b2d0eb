package consensus

import (
	"context"

	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
)

func newBridge(lc fx.Lifecycle, cfg *config.Config) (*Bridge, error) {
	b, err := New(Config{
		NodeID: cfg.NodeID,
		DataDir: cfg.Raft.DataDir,
		BindAddr: cfg.Raft.BindAddr,
		Bootstrap: cfg.Raft.Bootstrap,
		JoinAddrs: cfg.Raft.JoinAddrs,
		ApplyTimeout: cfg.Raft.ApplyTimout.Duration,
	})
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return b.Shutdown() },
	})
	return b, nil
}

var Module = fx.Module("consensus", fx.Provide(newBridge))
