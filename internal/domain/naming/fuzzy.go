package naming

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/batata-io/batata/internal/transport"
)

type fuzzyKey struct {
	namespace string
	pattern string
}

// fuzzyIndex tracks every outstanding fuzzy-watch subscription and
// drives the periodic full-set reconciliation plus incremental add
// events (onServiceAdded). No removal events are emitted: the Removed
// field of NamingFuzzyWatchSync is never populated, so a removal shows up
// only as its absence from the next full sync. The pattern-match result cache
// mirrors the teacher's peer_enricher LRU usage, here caching
// (namespace,pattern) -> matched service name set between sync ticks
// instead of resolved peer identities.
type fuzzyIndex struct {
	mu sync.Mutex
	subs map[fuzzyKey][]chan transport.NamingFuzzyWatchSync

	cache *lru.Cache[fuzzyKey, []string]
}

func newFuzzyIndex() *fuzzyIndex {
	cache, _ := lru.New[fuzzyKey, []string](1024)
	return &fuzzyIndex{
		subs: make(map[fuzzyKey][]chan transport.NamingFuzzyWatchSync),
		cache: cache,
	}
}

func (f *fuzzyIndex) subscribe(namespace, pattern string) (<-chan transport.NamingFuzzyWatchSync, func()) {
	key := fuzzyKey{namespace, pattern}
	ch := make(chan transport.NamingFuzzyWatchSync, 8)
	f.mu.Lock()
	f.subs[key] = append(f.subs[key], ch)
	f.mu.Unlock()

	unsub := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		list := f.subs[key]
		for i, c := range list {
			if c == ch {
				f.subs[key] = append(list[:i], list[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, unsub
}

func (f *fuzzyIndex) onServiceAdded(key transport.ServiceKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fk, chans := range f.subs {
		if fk.namespace != key.Namespace || !matchPattern(fk.pattern, key.Service) {
			continue
		}
		f.cache.Remove(fk)
		msg := transport.NamingFuzzyWatchSync{
			Namespace: fk.namespace,
			Pattern: fk.pattern,
			Added: []string{key.Service},
		}
		for _, ch := range chans {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// reconcile runs the periodic full-set sync (spec default sync_interval
// 5m via config.NamingConfig.SyncInterval) against the current registry
// contents, pushed from Registry.runFuzzySync.
func (f *fuzzyIndex) reconcile(r *Registry) {
	f.mu.Lock()
	snapshot := make(map[fuzzyKey][]chan transport.NamingFuzzyWatchSync, len(f.subs))
	for k, v := range f.subs {
		snapshot[k] = v
	}
	f.mu.Unlock()

	for fk, chans := range snapshot {
		if len(chans) == 0 {
			continue
		}
		matching := r.FuzzyWatch(fk.namespace, fk.pattern, false)
		f.cache.Add(fk, matching)
		msg := transport.NamingFuzzyWatchSync{
			Namespace: fk.namespace,
			Pattern: fk.pattern,
			Matching: matching,
		}
		for _, ch := range chans {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// runFuzzySync starts the ticker loop reconciling every subscription at
// interval until stop is closed.
func (r *Registry) runFuzzySync(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.fuzzy.reconcile(r)
		}
	}
}
