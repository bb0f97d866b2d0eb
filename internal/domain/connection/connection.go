// Package connection implements the Connection Registry component: it
// tracks every live client session, its metadata, its liveness state
// machine, and drives eviction. Structurally this mirrors the teacher's
// internal/domain/registry package — a sharded concurrent map plus a
// background janitor goroutine — generalized from "one cell per user" to
// "one record per connection" with an explicit state machine layered on
// top.
package connection

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// State is the Connection state machine.
type State int32

const (
	HandshakePending State = iota
	Active
	Unhealthy
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case HandshakePending:
		return "handshake_pending"
	case Active:
		return "active"
	case Unhealthy:
		return "unhealthy"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// ID is the opaque 128-bit connection identifier.
type ID = uuid.UUID

// Metadata captures the immutable-after-handshake facts about a session.
type Metadata struct {
	PeerAddr string
	ClientLabels map[string]string
	ClientVersion string
}

// Connection is one live client session. All mutable fields are
// accessed through atomics or the embedded mutex so the registry's
// sharded map can hand out pointers without callers needing their own
// external locking.
type Connection struct {
	id ID
	meta Metadata
	establishedAt time.Time

	mu sync.RWMutex
	state State

	lastActiveAtNano int64 // atomic
}

func newConnection(id ID, meta Metadata) *Connection {
	return &Connection{
		id:               id,
		meta:             meta,
		establishedAt:    time.Now(),
		state:            HandshakePending,
		lastActiveAtNano: time.Now().UnixNano(),
	}
}

func (c *Connection) ID() ID                       { return c.id }
func (c *Connection) Metadata() Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}
func (c *Connection) EstablishedAt() time.Time      { return c.establishedAt }

// ApplyHandshake fills in the client_version/labels the gRPC layer cannot
// know until the first ConnectionSetupRequest frame arrives; PeerAddr was
// already captured at stream-open time.
func (c *Connection) ApplyHandshake(clientVersion string, labels map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.meta.ClientVersion = clientVersion
	c.meta.ClientLabels = labels
}

func (c *Connection) LastActiveAt() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActiveAtNano))
}

// Touch bumps liveness on any inbound frame, including health checks.
func (c *Connection) Touch() {
	atomic.StoreInt64(&c.lastActiveAtNano, time.Now().UnixNano())
}

func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// transitions enumerates every state change state machine
// allows. Active<->Unhealthy may toggle; everything else is monotone
// forward, with Closed always reachable and terminal.
var transitions = map[State]map[State]bool{
	HandshakePending: {Active: true, Closed: true},
	Active: {Unhealthy: true, Draining: true, Closed: true},
	Unhealthy: {Active: true, Draining: true, Closed: true},
	Draining: {Closed: true},
	Closed: {},
}

// transition attempts a state change, returning false if the edge is not
// permitted (e.g. something already Closed).
func (c *Connection) transition(to State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == to {
		return true
	}
	if !transitions[c.state][to] {
		return false
	}
	c.state = to
	return true
}

// Activate moves HandshakePending -> Active. The ConnectionSetupRequest
// handler calls it as soon as the handshake metadata is applied, so the
// connection is already Active when the client's SetupAckRequest arrives;
// that third frame only refreshes liveness.
func (c *Connection) Activate() bool { return c.transition(Active) }

// MarkUnhealthy moves Active -> Unhealthy after a missed probe.
func (c *Connection) MarkUnhealthy() bool { return c.transition(Unhealthy) }

// Recover moves Unhealthy -> Active on any successful inbound frame.
func (c *Connection) Recover() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Unhealthy {
		c.state = Active
		return true
	}
	return false
}

// Drain moves Active/Unhealthy -> Draining for administrative reload or
// graceful shutdown.
func (c *Connection) Drain() bool { return c.transition(Draining) }

// Close moves any state to the terminal Closed state.
func (c *Connection) Close() bool { return c.transition(Closed) }

// AcceptsFrame reports whether the given frame type is allowed in the
// connection's current state.
func (c *Connection) AcceptsFrame(isHandshakeFrame bool) bool {
	switch c.State() {
	case HandshakePending:
		return isHandshakeFrame
	case Closed:
		return false
	default:
		return true
	}
}
