package connection

import (
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind distinguishes the two lifecycle events the registry
// publishes over its subscribe channel: {ConnectionOpened,
// ConnectionClosed(reason)}.
type EventKind int8

const (
	EventOpened EventKind = iota
	EventClosed
)

type Event struct {
	Kind EventKind
	ID ID
	Reason string
}

// shardCount mirrors the teacher's note that the Connection Registry
// "uses a sharded map keyed by connection id"; a fixed power of
// two keeps the mod-hash cheap.
const shardCount = 32

type shard struct {
	mu sync.RWMutex
	data map[ID]*Connection
}

// Registry is the Connection Registry component. Constructed once per
// node via fx and shared by the Stream Multiplexer, Handler Dispatch, and
// Push Dispatcher.
type Registry struct {
	shards [shardCount]*shard

	probeInterval time.Duration
	probeTimeout time.Duration
	drainTimeout time.Duration

	subsMu sync.Mutex
	subs []chan Event

	probeFn func(id ID) // injected: send a ClientDetection frame

	stopCh chan struct{}
	stopOnce sync.Once
}

// Option configures the Registry, matching the teacher's functional-
// options style in registry/options.go.
type Option func(*Registry)

func WithProbeInterval(d time.Duration) Option { return func(r *Registry) { r.probeInterval = d } }
func WithProbeTimeout(d time.Duration) Option { return func(r *Registry) { r.probeTimeout = d } }
func WithDrainTimeout(d time.Duration) Option { return func(r *Registry) { r.drainTimeout = d } }

// WithProbeFunc injects the callback the registry invokes to ask the
// Stream Multiplexer to send a ClientDetection frame to a connection;
// kept decoupled to avoid an import cycle between connection and stream.
func WithProbeFunc(fn func(id ID)) Option { return func(r *Registry) { r.probeFn = fn } }

// SetProbeFunc installs the probe callback after construction. The gRPC
// server that actually owns live sessions can only be built from the
// Registrar fx provides, so the probe wiring has to run in the other
// direction: the server sets itself as the registry's prober once both
// exist, instead of the registry depending on the server.
func (r *Registry) SetProbeFunc(fn func(id ID)) {
	r.probeFn = fn
}

func New(opts ...Option) *Registry {
	r := &Registry{
		probeInterval: 20 * time.Second,
		probeTimeout: 3 * time.Second,
		drainTimeout: 30 * time.Second,
		stopCh: make(chan struct{}),
	}
	for i := range r.shards {
		r.shards[i] = &shard{data: make(map[ID]*Connection)}
	}
	for _, opt := range opts {
		opt(r)
	}
	go r.runProbeLoop()
	return r
}

func (r *Registry) shardFor(id ID) *shard {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return r.shards[h.Sum32()%shardCount]
}

// Register mints a new connection id and stores its initial metadata.
func (r *Registry) Register(meta Metadata) *Connection {
	id := uuid.New()
	conn := newConnection(id, meta)
	sh := r.shardFor(id)
	sh.mu.Lock()
	sh.data[id] = conn
	sh.mu.Unlock()
	r.publish(Event{Kind: EventOpened, ID: id})
	return conn
}

func (r *Registry) Get(id ID) (*Connection, bool) {
	sh := r.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	c, ok := sh.data[id]
	return c, ok
}

// Touch bumps liveness for id if it exists.
func (r *Registry) Touch(id ID) {
	if c, ok := r.Get(id); ok {
		c.Touch()
		c.Recover()
	}
}

func (r *Registry) MarkUnhealthy(id ID) {
	if c, ok := r.Get(id); ok {
		c.MarkUnhealthy()
	}
}

// Evict transitions a connection to Closed and removes it from the
// shard, publishing ConnectionClosed for cascaded cleanup.
func (r *Registry) Evict(id ID, reason string) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	conn, ok := sh.data[id]
	if ok {
		delete(sh.data, id)
	}
	sh.mu.Unlock()
	if !ok {
		return
	}
	conn.Close()
	r.publish(Event{Kind: EventClosed, ID: id, Reason: reason})
}

// Drain transitions a connection to Draining without removing it; the
// caller (gRPC handler) is expected to send ConnectReset and, after
// drainTimeout, call Evict.
func (r *Registry) Drain(id ID) bool {
	c, ok := r.Get(id)
	if !ok {
		return false
	}
	return c.Drain()
}

func (r *Registry) DrainTimeout() time.Duration { return r.drainTimeout }

// IterByLabel returns every connection id whose metadata labels are a
// superset of selector.
func (r *Registry) IterByLabel(selector map[string]string) []ID {
	var out []ID
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, c := range sh.data {
			if labelsMatch(c.Metadata().ClientLabels, selector) {
				out = append(out, id)
			}
		}
		sh.mu.RUnlock()
	}
	return out
}

func labelsMatch(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}

// Subscribe registers a channel that receives every registry Event. The
// returned function unregisters it.
func (r *Registry) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	r.subsMu.Lock()
	r.subs = append(r.subs, ch)
	r.subsMu.Unlock()

	unsub := func() {
		r.subsMu.Lock()
		defer r.subsMu.Unlock()
		for i, c := range r.subs {
			if c == ch {
				r.subs = append(r.subs[:i], r.subs[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub
}

func (r *Registry) publish(ev Event) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// A slow subscriber never blocks connection lifecycle.
		}
	}
}

// runProbeLoop calls the probe callback every probeInterval for each
// Active or Unhealthy connection that has been idle for at least
// probeInterval. The callback (Server.Probe in infra/server/grpc) is what
// demotes a connection whose probe goes unanswered.
func (r *Registry) runProbeLoop() {
	ticker := time.NewTicker(r.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.probeOnce()
		}
	}
}

func (r *Registry) probeOnce() {
	now := time.Now()
	for _, sh := range r.shards {
		sh.mu.RLock()
		var toProbe []*Connection
		for _, c := range sh.data {
			if c.State() == Active || c.State() == Unhealthy {
				toProbe = append(toProbe, c)
			}
		}
		sh.mu.RUnlock()

		for _, c := range toProbe {
			if now.Sub(c.LastActiveAt()) < r.probeInterval {
				continue // recently active, no need to probe yet
			}
			if r.probeFn != nil {
				r.probeFn(c.id)
			}
			// probeOnce only sends probes; the callback itself calls
			// MarkUnhealthy when its ClientDetection request is not
			// answered within the probe timeout.
		}
	}
}

// EvictionOrder returns connection ids ordered by (last_active_at asc,
// id) for deterministic overload eviction.
func (r *Registry) EvictionOrder() []ID {
	type entry struct {
		id ID
		last time.Time
	}
	var all []entry
	for _, sh := range r.shards {
		sh.mu.RLock()
		for id, c := range sh.data {
			all = append(all, entry{id: id, last: c.LastActiveAt()})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].last.Equal(all[j].last) {
			return all[i].last.Before(all[j].last)
		}
		return all[i].id.String() < all[j].id.String()
	})
	out := make([]ID, len(all))
	for i, e := range all {
		out[i] = e.id
	}
	return out
}

func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}

func (r *Registry) Count() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.data)
		sh.mu.RUnlock()
	}
	return n
}
