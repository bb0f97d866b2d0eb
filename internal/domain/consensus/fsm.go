package consensus

import (
	"encoding/json"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// ApplyFunc handles one committed entry of a given kind, re-entering the
// owning component (naming.Registry, configengine.Engine) with
// from_replication semantics. Registered once at startup via
// Bridge.OnApply — see each component's module.go.
type ApplyFunc func(body []byte) (any, error)

// fsm adapts the registered ApplyFuncs to raft.FSM. Snapshotting is a
// no-op: Batata's replicated state (ephemeral-free persistent instances,
// config cache invalidation signals) is cheap to rebuild by replaying
// the log from the start, or — for configs — is already durable in the
// external ConfigStore, so there is nothing additional worth
// snapshotting; this FSM only needs raft.FSM's interface satisfied, not
// a bespoke snapshot format.
type fsm struct {
	mu sync.RWMutex
	handlers map[EntryKind]ApplyFunc

	appliedMu sync.Mutex
	applied []chan AppliedEntry
	lastIndex uint64
}

// AppliedEntry is published on Bridge.ApplyStream for every committed
// log entry ( "apply_stream -> Stream<AppliedEntry>").
type AppliedEntry struct {
	Index uint64
	Kind EntryKind
	Value any
	Err error
}

func newFSM() *fsm {
	return &fsm{handlers: make(map[EntryKind]ApplyFunc)}
}

func (f *fsm) register(kind EntryKind, fn ApplyFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[kind] = fn
}

// Apply implements raft.FSM: decode the envelope, dispatch to the
// registered handler, and publish the result on every apply-stream
// subscriber. Per "Apply order is total" — raft itself
// guarantees this; fsm.Apply only needs to stay deterministic given the
// same sequence of entries, which it is since handlers are pure state
// mutations keyed by the entry's own fields.
func (f *fsm) Apply(log *raft.Log) any {
	var entry Entry
	ae := AppliedEntry{Index: log.Index}
	if err := json.Unmarshal(log.Data, &entry); err != nil {
		ae.Err = err
		f.publish(ae)
		return err
	}
	ae.Kind = entry.Kind

	f.mu.RLock()
	handler, ok := f.handlers[entry.Kind]
	f.mu.RUnlock()

	var result any
	var err error
	if ok {
		result, err = handler(entry.Body)
	}
	ae.Value, ae.Err = result, err

	f.appliedMu.Lock()
	f.lastIndex = log.Index
	f.appliedMu.Unlock()

	f.publish(ae)
	return ApplyResult{Index: log.Index, Value: result}
}

func (f *fsm) publish(ae AppliedEntry) {
	f.appliedMu.Lock()
	defer f.appliedMu.Unlock()
	for _, ch := range f.applied {
		select {
		case ch <- ae:
		default:
		}
	}
}

func (f *fsm) subscribe(buffer int) (<-chan AppliedEntry, func()) {
	ch := make(chan AppliedEntry, buffer)
	f.appliedMu.Lock()
	f.applied = append(f.applied, ch)
	f.appliedMu.Unlock()
	unsub := func() {
		f.appliedMu.Lock()
		defer f.appliedMu.Unlock()
		for i, c := range f.applied {
			if c == ch {
				f.applied = append(f.applied[:i], f.applied[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub
}

// Snapshot/Restore satisfy raft.FSM with a minimal no-op snapshot (see
// type doc). A real multi-node deployment with unbounded log growth
// would want a proper snapshot; tracked as a follow-up, not required for
// this core's scope.
func (f *fsm) Snapshot() (raft.FSMSnapshot, error) { return noopSnapshot{}, nil }

func (f *fsm) Restore(rc io.ReadCloser) error { return rc.Close() }

type noopSnapshot struct{}

func (noopSnapshot) Persist(sink raft.SnapshotSink) error { return sink.Close() }
func (noopSnapshot) Release() {}
