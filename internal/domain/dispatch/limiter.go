package dispatch

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/batata-io/batata/internal/domain/connection"
)

// LimiterSet owns the per-connection and per-handler token buckets,
// lazily created the same way the teacher's registry lazily creates a
// Cell per user on first contact (sync.Map + LoadOrStore).
type LimiterSet struct {
	connMu sync.Mutex
	connBuckets map[connection.ID]*rate.Limiter
	connRate rate.Limit
	connBurst int

	handlerMu sync.Mutex
	handlerBuckets map[string]*rate.Limiter
	handlerRate rate.Limit
	handlerBurst int
}

func NewLimiterSet(connRate float64, connBurst int, handlerRate float64, handlerBurst int) *LimiterSet {
	return &LimiterSet{
		connBuckets: make(map[connection.ID]*rate.Limiter),
		connRate: rate.Limit(connRate),
		connBurst: connBurst,
		handlerBuckets: make(map[string]*rate.Limiter),
		handlerRate: rate.Limit(handlerRate),
		handlerBurst: handlerBurst,
	}
}

func (l *LimiterSet) AllowConnection(id connection.ID) bool {
	l.connMu.Lock()
	b, ok := l.connBuckets[id]
	if !ok {
		b = rate.NewLimiter(l.connRate, l.connBurst)
		l.connBuckets[id] = b
	}
	l.connMu.Unlock()
	return b.Allow()
}

func (l *LimiterSet) AllowHandler(tag string) bool {
	l.handlerMu.Lock()
	b, ok := l.handlerBuckets[tag]
	if !ok {
		b = rate.NewLimiter(l.handlerRate, l.handlerBurst)
		l.handlerBuckets[tag] = b
	}
	l.handlerMu.Unlock()
	return b.Allow()
}

// ForgetConnection drops a connection's bucket once it closes, so
// LimiterSet doesn't grow unbounded over a node's lifetime.
func (l *LimiterSet) ForgetConnection(id connection.ID) {
	l.connMu.Lock()
	delete(l.connBuckets, id)
	l.connMu.Unlock()
}
