package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/transport"
)

// BreakerStore wraps a ConfigStore with a circuit breaker so a sick
// backing database degrades to fast transport errors instead of piling
// up stuck long-listen goroutines.
type BreakerStore struct {
	inner ConfigStore
	cb *gobreaker.CircuitBreaker
}

func NewBreakerStore(inner ConfigStore, name string) *BreakerStore {
	settings := gobreaker.Settings{
		Name: name,
		MaxRequests: 5,
		Interval: 30 * time.Second,
		Timeout: 10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	}
	return &BreakerStore{inner: inner, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerStore) Get(ctx context.Context, key transport.ConfigKey) (ConfigRecord, bool, error) {
	type result struct {
		rec ConfigRecord
		ok bool
	}
	r, err := b.cb.Execute(func() (interface{}, error) {
		rec, ok, err := b.inner.Get(ctx, key)
		return result{rec, ok}, err
	})
	if err != nil {
		return ConfigRecord{}, false, classify(err)
	}
	res := r.(result)
	return res.rec, res.ok, nil
}

func (b *BreakerStore) Put(ctx context.Context, key transport.ConfigKey, content, configType string, tags []string) (ConfigRecord, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Put(ctx, key, content, configType, tags)
	})
	if err != nil {
		return ConfigRecord{}, classify(err)
	}
	return r.(ConfigRecord), nil
}

func (b *BreakerStore) Delete(ctx context.Context, key transport.ConfigKey) (uint64, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Delete(ctx, key)
	})
	if err != nil {
		return 0, classify(err)
	}
	return r.(uint64), nil
}

func (b *BreakerStore) History(ctx context.Context, key transport.ConfigKey, limit int) ([]HistoryEntry, error) {
	r, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.History(ctx, key, limit)
	})
	if err != nil {
		return nil, classify(err)
	}
	return r.([]HistoryEntry), nil
}

func classify(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return apperr.Wrap(apperr.KindTransport, "config store unavailable", err)
	}
	return err
}

var _ ConfigStore = (*BreakerStore)(nil)
