package configengine

import (
	"strings"
	"sync"

	"github.com/batata-io/batata/internal/transport"
)

// matchPattern mirrors naming's glob-lite matcher (prefix* or exact);
// duplicated rather than imported since configengine must not depend on
// naming.
func matchPattern(pattern, value string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}

type fuzzyKey struct {
	namespace string
	pattern string
}

// fuzzyIndex is configengine's counterpart to naming's fuzzyIndex.
type fuzzyIndex struct {
	mu sync.Mutex
	subs map[fuzzyKey][]chan transport.ConfigFuzzyWatchSync
}

func newFuzzyIndex() *fuzzyIndex {
	return &fuzzyIndex{subs: make(map[fuzzyKey][]chan transport.ConfigFuzzyWatchSync)}
}

func (f *fuzzyIndex) subscribe(namespace, pattern string) (<-chan transport.ConfigFuzzyWatchSync, func()) {
	key := fuzzyKey{namespace, pattern}
	ch := make(chan transport.ConfigFuzzyWatchSync, 8)
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

func (f *fuzzyIndex) onKeyAdded(key transport.ConfigKey) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for fk, chans := range f.subs {
		if fk.namespace != key.Namespace || !matchPattern(fk.pattern, key.DataID) {
			continue
		}
		msg := transport.ConfigFuzzyWatchSync{Namespace: fk.namespace, Pattern: fk.pattern, Matching: []transport.ConfigKey{key}}
		for _, ch := range chans {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// reconcile runs the periodic full-set sync driven by Engine.RunFuzzySync.
func (f *fuzzyIndex) reconcile(e *Engine) {
	f.mu.Lock()
	snapshot := make(map[fuzzyKey][]chan transport.ConfigFuzzyWatchSync, len(f.subs))
	for k, v := range f.subs {
		snapshot[k] = v
	}
	f.mu.Unlock()

	for fk, chans := range snapshot {
		if len(chans) == 0 {
			continue
		}
		ids := e.FuzzyWatch(fk.namespace, fk.pattern)
		keys := make([]transport.ConfigKey, len(ids))
		for i, id := range ids {
			keys[i] = transport.ConfigKey{Namespace: fk.namespace, DataID: id}
		}
		msg := transport.ConfigFuzzyWatchSync{Namespace: fk.namespace, Pattern: fk.pattern, Matching: keys}
		for _, ch := range chans {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}
