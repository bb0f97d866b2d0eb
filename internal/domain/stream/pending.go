package stream

import (
	"sync"
	"time"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/transport"
)

// PendingTable correlates server-initiated requests (such as
// ClientDetection) with their eventual client responses by request id,
// enforcing the per-request timeout calls for (default 3s via
// config.SessionConfig.RequestTimeout).
type PendingTable struct {
	mu sync.Mutex
	waiters map[string]chan result
	timeout time.Duration
}

type result struct {
	payload *transport.Payload
	err error
}

func NewPendingTable(timeout time.Duration) *PendingTable {
	return &PendingTable{
		waiters: make(map[string]chan result),
		timeout: timeout,
	}
}

// Has reports whether requestID is awaiting a response.
func (t *PendingTable) Has(requestID string) bool {
	if requestID == "" {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.waiters[requestID]
	return ok
}

// Await registers requestID and blocks until Resolve is called for it or
// the table's timeout elapses, whichever comes first.
func (t *PendingTable) Await(requestID string) (*transport.Payload, error) {
	ch := make(chan result, 1)
	t.mu.Lock()
	t.waiters[requestID] = ch
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		delete(t.waiters, requestID)
		t.mu.Unlock()
	}()

	select {
	case r := <-ch:
		return r.payload, r.err
	case <-time.After(t.timeout):
		return nil, apperr.New(apperr.KindTransport, "server request timed out: "+requestID)
	}
}

// Resolve delivers a response to whoever is awaiting requestID. Returns
// false if nothing was waiting (the caller should then treat the frame
// as an unsolicited response and drop it).
func (t *PendingTable) Resolve(requestID string, p *transport.Payload) bool {
	t.mu.Lock()
	ch, ok := t.waiters[requestID]
	t.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- result{payload: p}:
	default:
	}
	return true
}

// CancelAll fails every outstanding waiter, used when the owning
// connection closes.
func (t *PendingTable) CancelAll(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.waiters {
		select {
		case ch <- result{err: err}:
		default:
		}
		delete(t.waiters, id)
	}
}
