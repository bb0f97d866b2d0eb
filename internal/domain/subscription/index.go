// Package subscription implements the Subscription Index component
//: the reverse map from a subject (a service, a config, or a
// fuzzy pattern) to the connections that watch it, the coalescing window
// that collapses a burst of revisions into one push, and the cancellation
// hook subscription withdrawal needs. It is deliberately payload-agnostic
// — naming and configengine each supply a RenderFunc closure that knows
// how to build the typed payload for one subscriber, the same way the
// teacher's Cell.deliver fans one event out to many sessions without
// needing to know what the event means.
package subscription

import (
	"sync"
	"time"

	"github.com/batata-io/batata/internal/transport"
)

// Kind distinguishes the subject namespaces so a ServiceKey and a
// ConfigKey with coincidentally equal encodings never collide.
type Kind int8

const (
	KindService Kind = iota
	KindConfig
	KindFuzzy
)

// Subject identifies one watchable thing: a service, a config, or a
// fuzzy-watch pattern.
type Subject struct {
	Kind Kind
	Key string
}

// Encode renders Subject as an opaque string key, the form handed to the
// Push Dispatcher (internal/domain/push) so that package need not import
// this one to track per-subject task supersession.
func (s Subject) Encode() string {
	switch s.Kind {
	case KindConfig:
		return "cfg:" + s.Key
	case KindFuzzy:
		return "fuzzy:" + s.Key
	default:
		return "svc:" + s.Key
	}
}

// RenderFunc builds the payload a specific subscriber should receive for
// its subject's current state, applying that subscriber's own filter
// (cluster/healthy_only for naming, gray predicate for config). It
// returns ok=false when nothing should be delivered (e.g. the filtered
// view didn't actually change).
type RenderFunc func() (payload *transport.Payload, revision uint64, ok bool)

// Subscription is one (connection, subject) watch.
type Subscription struct {
	ConnID string
	Subject Subject
	Render RenderFunc
	LastDeliveredRevision uint64
}

// Sink is how the Index hands a rendered push off for delivery —
// satisfied by internal/domain/push.Dispatcher's Deliver method without
// either package importing the other (the subject is passed pre-encoded
// as a plain string), avoiding a dependency cycle between the two.
type Sink interface {
	Deliver(connID, subjectKey string, revision uint64, payload *transport.Payload)
}

type pendingFlush struct {
	timer *time.Timer
	firstAt time.Time
	revision uint64
}

// Index is the Subscription Index component.
type Index struct {
	mu sync.Mutex
	bySubject map[Subject]map[string]*Subscription // subject -> connID -> sub
	byConn map[string]map[Subject]bool

	pendingMu sync.Mutex
	pending map[Subject]*pendingFlush

	coalesceWindow time.Duration
	maxCoalesce time.Duration

	sink Sink
}

func New(sink Sink, coalesceWindow, maxCoalesce time.Duration) *Index {
	if coalesceWindow <= 0 {
		coalesceWindow = 10 * time.Millisecond
	}
	if maxCoalesce <= 0 {
		maxCoalesce = 100 * time.Millisecond
	}
	return &Index{
		bySubject: make(map[Subject]map[string]*Subscription),
		byConn: make(map[string]map[Subject]bool),
		pending: make(map[Subject]*pendingFlush),
		coalesceWindow: coalesceWindow,
		maxCoalesce: maxCoalesce,
		sink: sink,
	}
}

// Subscribe registers a (connection, subject) watch, idempotently: at
// most one subscription exists per (connection, subject) pair.
func (idx *Index) Subscribe(connID string, subject Subject, render RenderFunc) *Subscription {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	subs, ok := idx.bySubject[subject]
	if !ok {
		subs = make(map[string]*Subscription)
		idx.bySubject[subject] = subs
	}
	sub, exists := subs[connID]
	if !exists {
		sub = &Subscription{ConnID: connID, Subject: subject}
		subs[connID] = sub
	}
	sub.Render = render // refresh the closure even on a re-subscribe

	conns, ok := idx.byConn[connID]
	if !ok {
		conns = make(map[Subject]bool)
		idx.byConn[connID] = conns
	}
	conns[subject] = true
	return sub
}

// Unsubscribe withdraws one (connection, subject) watch. Per
// "cancellation", pending-but-undispatched pushes for this subscriber are
// the Push Dispatcher's concern (it cancels tasks by connID+subject); the
// Index's job is simply to stop generating new ones.
func (idx *Index) Unsubscribe(connID string, subject Subject) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if subs, ok := idx.bySubject[subject]; ok {
		delete(subs, connID)
		if len(subs) == 0 {
			delete(idx.bySubject, subject)
		}
	}
	if conns, ok := idx.byConn[connID]; ok {
		delete(conns, subject)
		if len(conns) == 0 {
			delete(idx.byConn, connID)
		}
	}
}

// UnsubscribeConn withdraws every subject a connection watches, called on
// connection close.
func (idx *Index) UnsubscribeConn(connID string) {
	idx.mu.Lock()
	subjects := make([]Subject, 0, len(idx.byConn[connID]))
	for s := range idx.byConn[connID] {
		subjects = append(subjects, s)
	}
	idx.mu.Unlock()
	for _, s := range subjects {
		idx.Unsubscribe(connID, s)
	}
}

// Subscribers returns every connection id currently watching subject.
func (idx *Index) Subscribers(subject Subject) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	subs := idx.bySubject[subject]
	out := make([]string, 0, len(subs))
	for id := range subs {
		out = append(out, id)
	}
	return out
}

// Notify schedules a coalesced flush for subject:
// multiple revisions within coalesce_window collapse into one push, reset
// on every change, hard-capped at max_coalesce from the first change in
// the burst.
func (idx *Index) Notify(subject Subject, revision uint64) {
	idx.pendingMu.Lock()
	defer idx.pendingMu.Unlock()

	now := time.Now()
	pf, ok := idx.pending[subject]
	if !ok {
		pf = &pendingFlush{firstAt: now}
		idx.pending[subject] = pf
	}
	pf.revision = revision

	delay := idx.coalesceWindow
	if elapsed := now.Sub(pf.firstAt); elapsed+delay > idx.maxCoalesce {
		delay = idx.maxCoalesce - elapsed
		if delay < 0 {
			delay = 0
		}
	}
	if pf.timer != nil {
		pf.timer.Stop()
	}
	pf.timer = time.AfterFunc(delay, func() { idx.flush(subject) })
}

func (idx *Index) flush(subject Subject) {
	idx.pendingMu.Lock()
	delete(idx.pending, subject)
	idx.pendingMu.Unlock()

	idx.mu.Lock()
	subs := make([]*Subscription, 0, len(idx.bySubject[subject]))
	for _, s := range idx.bySubject[subject] {
		subs = append(subs, s)
	}
	idx.mu.Unlock()

	for _, sub := range subs {
		payload, rev, ok := sub.Render()
		if !ok {
			continue
		}
		// Render runs unlocked (it may call back into Query/consult other
		// state), but the watermark itself is shared with Ack, so the
		// compare-and-advance has to go through idx.mu like Ack's does.
		idx.mu.Lock()
		if rev <= sub.LastDeliveredRevision {
			idx.mu.Unlock()
			continue
		}
		sub.LastDeliveredRevision = rev
		idx.mu.Unlock()
		idx.sink.Deliver(sub.ConnID, subject.Encode(), rev, payload)
	}
}

// Ack advances a subscription's watermark directly, used after a
// subscriber's initial snapshot is delivered outside Notify (namingh's
// SubscribeServiceRequest handler and infra/server/ws), so the next
// coalesced flush does not resend that revision.
func (idx *Index) Ack(connID string, subject Subject, revision uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if sub, ok := idx.bySubject[subject][connID]; ok && revision > sub.LastDeliveredRevision {
		sub.LastDeliveredRevision = revision
	}
}
