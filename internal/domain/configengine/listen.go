package configengine

import (
	"sync"
	"time"

	"github.com/batata-io/batata/internal/transport"
)

// listenEntry is one retained long-listen registration.
type listenEntry struct {
	connID string
	key transport.ConfigKey
	timer *time.Timer
}

// listenTable owns every outstanding retained listen, indexed by the
// config key it watches so a publish/remove can fire exactly the
// matching entries in O(listeners-for-that-key). onAdd/onRemove keep an
// "active listens" gauge honest without the table needing to know
// anything about telemetry.
type listenTable struct {
	mu sync.Mutex
	byKey map[transport.ConfigKey][]*listenEntry
	byConn map[string]map[*listenEntry]bool
	timeout time.Duration
	onAdd func()
	onRemove func()
}

func newListenTable(timeout time.Duration, onAdd, onRemove func()) *listenTable {
	return &listenTable{
		byKey: make(map[transport.ConfigKey][]*listenEntry),
		byConn: make(map[string]map[*listenEntry]bool),
		timeout: timeout,
		onAdd: onAdd,
		onRemove: onRemove,
	}
}

// retain registers connID's interest in key until timeout elapses or a
// matching mutation fires it first, whichever comes first.
func (lt *listenTable) retain(connID string, key transport.ConfigKey) {
	lt.mu.Lock()
	entry := &listenEntry{connID: connID, key: key}
	entry.timer = time.AfterFunc(lt.timeout, func() { lt.expire(entry) })

	lt.byKey[key] = append(lt.byKey[key], entry)
	if lt.byConn[connID] == nil {
		lt.byConn[connID] = make(map[*listenEntry]bool)
	}
	lt.byConn[connID][entry] = true
	lt.mu.Unlock()

	if lt.onAdd != nil {
		lt.onAdd()
	}
}

func (lt *listenTable) expire(entry *listenEntry) {
	lt.mu.Lock()
	removed := lt.removeLocked(entry)
	lt.mu.Unlock()
	if removed && lt.onRemove != nil {
		lt.onRemove()
	}
}

// removeLocked unlinks entry from both indices, reporting whether it was
// still present (a concurrent fire/expire racing the same entry is
// idempotent rather than double-counted).
func (lt *listenTable) removeLocked(entry *listenEntry) bool {
	list := lt.byKey[entry.key]
	found := false
	for i, e := range list {
		if e == entry {
			lt.byKey[entry.key] = append(list[:i], list[i+1:]...)
			found = true
			break
		}
	}
	if len(lt.byKey[entry.key]) == 0 {
		delete(lt.byKey, entry.key)
	}
	if lt.byConn[entry.connID] != nil {
		if _, ok := lt.byConn[entry.connID][entry]; ok {
			found = true
		}
		delete(lt.byConn[entry.connID], entry)
		if len(lt.byConn[entry.connID]) == 0 {
			delete(lt.byConn, entry.connID)
		}
	}
	return found
}

// fire returns every retained listen for key, removing them all, to be
// notified by the caller once per entry.
func (lt *listenTable) fire(key transport.ConfigKey) []string {
	lt.mu.Lock()
	list := lt.byKey[key]
	conns := make([]string, 0, len(list))
	for _, e := range list {
		e.timer.Stop()
		conns = append(conns, e.connID)
		lt.removeLocked(e)
	}
	lt.mu.Unlock()

	if lt.onRemove != nil {
		for range conns {
			lt.onRemove()
		}
	}
	return conns
}

// cancelConn drops every retained listen owned by connID (connection
// closed or drained).
func (lt *listenTable) cancelConn(connID string) {
	lt.mu.Lock()
	entries := make([]*listenEntry, 0, len(lt.byConn[connID]))
	for entry := range lt.byConn[connID] {
		entries = append(entries, entry)
	}
	removed := 0
	for _, entry := range entries {
		entry.timer.Stop()
		if lt.removeLocked(entry) {
			removed++
		}
	}
	lt.mu.Unlock()

	if lt.onRemove != nil {
		for i := 0; i < removed; i++ {
			lt.onRemove()
		}
	}
}
