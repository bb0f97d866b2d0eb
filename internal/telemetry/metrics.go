package telemetry

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics is the process-wide, immutable handle to every counter/histogram
// the domain components publish to. Like the type-tag registry, it is a
// process-wide singleton built once at startup; only the counters
// themselves are internally synchronized (the otel SDK does this for
// us) — nothing else mutates this struct's fields after NewMetrics
// returns.
type Metrics struct {
	meter metric.Meter

	PushEnqueued metric.Int64Counter
	PushAcked metric.Int64Counter
	PushRetried metric.Int64Counter
	PushDropped metric.Int64Counter
	RateLimited metric.Int64Counter
	ConnectionsOpen metric.Int64UpDownCounter
	ConnectionsTotal metric.Int64Counter
	SubscribeCount metric.Int64UpDownCounter
	ConsensusApplies metric.Int64Counter
	ConfigListens metric.Int64UpDownCounter
}

// NewMetrics builds every instrument once from the supplied meter
// provider. Failures to create an instrument are treated as fatal
// configuration errors since a metric handle is assumed non-nil
// everywhere it's used.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{meter: meter}

	var err error
	if m.PushEnqueued, err = meter.Int64Counter("batata.push.enqueued"); err != nil {
		return nil, err
	}
	if m.PushAcked, err = meter.Int64Counter("batata.push.acked"); err != nil {
		return nil, err
	}
	if m.PushRetried, err = meter.Int64Counter("batata.push.retried"); err != nil {
		return nil, err
	}
	if m.PushDropped, err = meter.Int64Counter("batata.push.dropped"); err != nil {
		return nil, err
	}
	if m.RateLimited, err = meter.Int64Counter("batata.dispatch.rate_limited"); err != nil {
		return nil, err
	}
	if m.ConnectionsOpen, err = meter.Int64UpDownCounter("batata.connections.open"); err != nil {
		return nil, err
	}
	if m.ConnectionsTotal, err = meter.Int64Counter("batata.connections.total"); err != nil {
		return nil, err
	}
	if m.SubscribeCount, err = meter.Int64UpDownCounter("batata.subscriptions.active"); err != nil {
		return nil, err
	}
	if m.ConsensusApplies, err = meter.Int64Counter("batata.consensus.applies"); err != nil {
		return nil, err
	}
	if m.ConfigListens, err = meter.Int64UpDownCounter("batata.config.listens.active"); err != nil {
		return nil, err
	}
	return m, nil
}

// Noop returns a Metrics handle backed by the no-op meter provider, used
// in tests that don't care about telemetry.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("batata-noop"))
	return m
}
