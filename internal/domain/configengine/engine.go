// Package configengine implements the Config Change Engine component:
// long-listen batch matching, per-config and global revision tracking,
// gray/staged release, and cross-node cache-invalidation sync.
package configengine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/store"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/transport"
)

// Pusher is the narrow slice of push.Dispatcher's surface the engine
// needs to deliver a one-shot ConfigChangeNotify to a single connection.
// It is satisfied structurally by *push.Dispatcher (the same method
// subscription.Sink requires), so configengine never imports push.
type Pusher interface {
	Deliver(connID, subjectKey string, revision uint64, payload *transport.Payload)
}

// Engine is the Config Change Engine's public surface.
type Engine struct {
	store store.ConfigStore

	mu sync.RWMutex
	records map[transport.ConfigKey]*record

	globalRevision uint64 // atomic

	listens *listenTable
	fuzzy *fuzzyIndex
	sync *clusterSync

	nodeID string
	pusher Pusher

	metrics *telemetry.Metrics
	logger *slog.Logger
}

func New(cs store.ConfigStore, listenTimeout time.Duration, nodeID string, pusher Pusher, metrics *telemetry.Metrics, logger *slog.Logger) *Engine {
	e := &Engine{
		store: cs,
		records: make(map[transport.ConfigKey]*record),
		fuzzy: newFuzzyIndex(),
		nodeID: nodeID,
		pusher: pusher,
		metrics: metrics,
		logger: logger,
	}
	e.listens = newListenTable(listenTimeout,
		func() { metrics.ConfigListens.Add(context.Background(), 1) },
		func() { metrics.ConfigListens.Add(context.Background(), -1) },
	)
	return e
}

// AttachClusterSync wires the cross-node cache-invalidation bus. Optional:
// a single-node deployment never calls this and the engine behaves
// identically, just without peer fan-out.
func (e *Engine) AttachClusterSync(cs *clusterSync) {
	e.sync = cs
	cs.onRemoteChange = e.ApplyRemoteChange
}

func (e *Engine) record(key transport.ConfigKey) *record {
	e.mu.RLock()
	rec, ok := e.records[key]
	e.mu.RUnlock()
	if ok {
		return rec
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok = e.records[key]
	if !ok {
		rec = newRecord(key)
		e.records[key] = rec
		e.fuzzy.onKeyAdded(key)
	}
	return rec
}

// Query resolves key's content for sub, honoring a gray overlay if sub
// matches it.
func (e *Engine) Query(key transport.ConfigKey, sub Subscriber) (content, md5, configType string, revision uint64, err error) {
	e.mu.RLock()
	rec, ok := e.records[key]
	e.mu.RUnlock()
	if !ok {
		return "", "", "", 0, apperr.New(apperr.KindState, "config not found")
	}
	c, m, rev, ok := rec.snapshotFor(sub)
	if !ok {
		return "", "", "", 0, apperr.New(apperr.KindState, "config not found")
	}
	rec.mu.RLock()
	typ := rec.typ
	rec.mu.RUnlock()
	return c, m, typ, rev, nil
}

// Publish writes a new revision, replacing or establishing a gray overlay,
// then fires retained listens and cluster-syncs peers.
func (e *Engine) Publish(key transport.ConfigKey, content, configType string, tags []string, gray *transport.GraySelector) (uint64, error) {
	stored, err := e.store.Put(context.Background(), key, content, configType, tags)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "persist config", err)
	}

	rec := e.record(key)
	rec.mu.Lock()
	rec.typ, rec.tags = configType, tags
	hadBase := rec.revision != 0
	// store.Put always persists the write it's given, gray or not, so the
	// revision it returns is live either way: a gray-only record with
	// revision still 0 would make snapshotFor reject every subscriber,
	// gray and stable alike.
	rec.revision = stored.Revision
	if gray != nil {
		rec.gray = &grayOverlay{selector: gray, content: content, md5: stored.MD5}
		if !hadBase {
			// nothing stable published yet: the overlay has no base to sit
			// atop, so the stored write doubles as that base until a
			// non-gray Publish or PublishGA replaces it.
			rec.content, rec.md5 = stored.Content, stored.MD5
		}
	} else {
		rec.content, rec.md5 = stored.Content, stored.MD5
		rec.gray = nil
	}
	rev := rec.revision
	rec.mu.Unlock()

	atomic.AddUint64(&e.globalRevision, 1)
	e.fireAndSync(key, rev)
	return rev, nil
}

// PublishGA promotes the gray overlay to the stable base and drops it
// atomically.
func (e *Engine) PublishGA(key transport.ConfigKey) (uint64, error) {
	rec := e.record(key)
	rec.mu.Lock()
	if rec.gray == nil {
		rev := rec.revision
		rec.mu.Unlock()
		return rev, nil
	}
	content, configType, tags := rec.gray.content, rec.typ, rec.tags
	rec.mu.Unlock()

	return e.Publish(key, content, configType, tags, nil)
}

func (e *Engine) Remove(key transport.ConfigKey) (uint64, error) {
	rev, err := e.store.Delete(context.Background(), key)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	delete(e.records, key)
	e.mu.Unlock()

	atomic.AddUint64(&e.globalRevision, 1)
	e.fireAndSync(key, rev)
	return rev, nil
}

func (e *Engine) fireAndSync(key transport.ConfigKey, revision uint64) {
	for _, connID := range e.listens.fire(key) {
		e.notify(connID, key, revision)
	}
	if e.sync != nil {
		e.sync.publish(key, revision, e.nodeID)
	}
}

func (e *Engine) notify(connID string, key transport.ConfigKey, revision uint64) {
	if e.pusher == nil {
		return
	}
	payload, err := transport.Encode(transport.TypeConfigChangeNotify, transport.ConfigChangeNotify{ConfigKey: key, Revision: revision})
	if err != nil {
		if e.logger != nil {
			e.logger.Error("encode config change notify", "error", err)
		}
		return
	}
	subjectID := "cfglisten:" + key.Namespace + "|" + key.Group + "|" + key.DataID
	e.pusher.Deliver(connID, subjectID, revision, payload)
}

// ApplyRemoteChange is the cluster-sync / consensus-apply callback:
// another node wrote key, so this node must invalidate its own cache and
// re-fire any local retained listens, but must never re-apply content
// locally (that would double-apply the remote write).
func (e *Engine) ApplyRemoteChange(key transport.ConfigKey, revision uint64) {
	e.mu.Lock()
	delete(e.records, key)
	e.mu.Unlock()
	for _, connID := range e.listens.fire(key) {
		e.notify(connID, key, revision)
	}
}

// BatchListen implements the long-listen protocol: items
// whose claimed md5 already differs from current are returned changed
// immediately; everything else is retained until the next mutation or
// listenTimeout, whichever comes first.
func (e *Engine) BatchListen(connID string, items []transport.ConfigListenItem) []transport.ConfigKey {
	var changed []transport.ConfigKey
	for _, item := range items {
		e.mu.RLock()
		rec, ok := e.records[item.ConfigKey]
		e.mu.RUnlock()

		currentMD5 := ""
		if ok {
			_, currentMD5, _, ok = rec.snapshotFor(Subscriber{ConnID: connID})
		}
		if !ok || currentMD5 != item.MD5 {
			changed = append(changed, item.ConfigKey)
			continue
		}
		e.listens.retain(connID, item.ConfigKey)
	}
	return changed
}

func (e *Engine) GlobalRevision() uint64 { return atomic.LoadUint64(&e.globalRevision) }

// CancelConn drops every retained listen owned by connID.
func (e *Engine) CancelConn(connID string) { e.listens.cancelConn(connID) }

// FuzzyWatch returns the current set of data ids under namespace matching
// pattern.
func (e *Engine) FuzzyWatch(namespace, pattern string) []string {
	e.mu.RLock()
	var ids []string
	for key := range e.records {
		if key.Namespace == namespace && matchPattern(pattern, key.DataID) {
			ids = append(ids, key.DataID)
		}
	}
	e.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (e *Engine) SubscribeFuzzy(namespace, pattern string) (<-chan transport.ConfigFuzzyWatchSync, func()) {
	return e.fuzzy.subscribe(namespace, pattern)
}

// RunFuzzySync starts the periodic full-set reconciliation ticker until
// stop closes, mirroring naming.Registry.runFuzzySync.
func (e *Engine) RunFuzzySync(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.fuzzy.reconcile(e)
		}
	}
}
