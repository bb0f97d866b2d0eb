package configengine

import (
	"sync"

	"github.com/batata-io/batata/internal/transport"
)

// record is the engine's in-memory mirror of one config, kept alongside
// (not instead of) the durable ConfigStore: the store is authoritative
// content, this is the fast path for revision/md5 comparisons and the
// gray overlay.
type record struct {
	mu sync.RWMutex
	key transport.ConfigKey
	content string
	md5 string
	typ string
	tags []string
	revision uint64

	gray *grayOverlay
}

type grayOverlay struct {
	selector *transport.GraySelector
	content string
	md5 string
}

func newRecord(key transport.ConfigKey) *record {
	return &record{key: key}
}

func (r *record) snapshotFor(sub Subscriber) (content, md5 string, revision uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.revision == 0 {
		return "", "", 0, false
	}
	if r.gray != nil && grayPredicate(r.gray.selector, sub) {
		return r.gray.content, r.gray.md5, r.revision, true
	}
	return r.content, r.md5, r.revision, true
}

func (r *record) snapshot() (content, md5, typ string, tags []string, revision uint64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.revision == 0 {
		return "", "", "", nil, 0, false
	}
	return r.content, r.md5, r.typ, r.tags, r.revision, true
}
