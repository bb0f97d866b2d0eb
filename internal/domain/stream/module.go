package stream

import (
	"go.uber.org/fx"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/domain/connection"
)

// Factory mints a Multiplexer per connection using the node's configured
// defaults, the way the teacher's NewConnector takes a bufferSize derived
// from Hub configuration rather than a global constant.
type Factory struct {
	opts Options
}

func NewFactory(cfg *config.Config) *Factory {
	s := cfg.Session
	return &Factory{opts: Options{
		OutboundBuffer: s.OutboundBuffer,
		RequestTimeout: s.RequestTimeout.Duration,
		MaxInFlight: s.MaxInFlight,
	}}
}

func (f *Factory) New(connID connection.ID, sender Sender) *Multiplexer {
	return New(connID, sender, f.opts)
}

var Module = fx.Module("stream",
	fx.Provide(NewFactory),
)
