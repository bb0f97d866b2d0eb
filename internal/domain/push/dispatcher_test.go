package push

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/domain/stream"
	"github.com/batata-io/batata/internal/transport"
)

type fakeSender struct {
	mu sync.Mutex
	accept bool
	sent []*transport.Payload
}

func (f *fakeSender) Enqueue(p *transport.Payload, pr stream.Priority) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accept {
		return false
	}
	f.sent = append(f.sent, p)
	return true
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func newTestDispatcher(ackTimeout time.Duration) *Dispatcher {
	return NewDispatcher(0, ackTimeout, 3, time.Millisecond, 5*time.Millisecond, nil, nil)
}

func TestDeliverWithoutAttachedSenderIsDropped(t *testing.T) {
	d := newTestDispatcher(time.Second)
	d.Deliver("conn-1", "subj", 1, &transport.Payload{Type: "X"})

	cs := d.conns["conn-1"]
	cs.mu.Lock()
	defer cs.mu.Unlock()
	assert.Empty(t, cs.bySubject)
}

func TestDeliverSendsThroughAttachedSender(t *testing.T) {
	d := newTestDispatcher(time.Second)
	sender := &fakeSender{accept: true}
	d.Attach("conn-1", sender)

	d.Deliver("conn-1", "subj-a", 1, &transport.Payload{Type: "X", Body: []byte("a")})
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, time.Millisecond)
}

func TestSupersessionCancelsQueuedPredecessor(t *testing.T) {
	d := newTestDispatcher(time.Second)
	sender := &fakeSender{accept: false} // never actually sends, stays Queued
	d.Attach("conn-1", sender)

	d.Deliver("conn-1", "subj-a", 1, &transport.Payload{Type: "X"})
	cs := d.conns["conn-1"]
	cs.mu.Lock()
	first := cs.bySubject["subj-a"]
	cs.mu.Unlock()

	d.Deliver("conn-1", "subj-a", 2, &transport.Payload{Type: "X"})

	assert.True(t, first.cancelled)
}

func TestAckSuccessClearsTask(t *testing.T) {
	d := newTestDispatcher(time.Second)
	sender := &fakeSender{accept: true}
	d.Attach("conn-1", sender)
	d.Deliver("conn-1", "subj-a", 1, &transport.Payload{Type: "X"})

	cs := d.conns["conn-1"]
	require.Eventually(t, func() bool {
		cs.mu.Lock()
		defer cs.mu.Unlock()
		return len(cs.bySubject) == 1
	}, time.Second, time.Millisecond)

	cs.mu.Lock()
	task := cs.bySubject["subj-a"]
	cs.mu.Unlock()

	d.Ack("conn-1", task.ID, true)

	cs.mu.Lock()
	_, stillQueued := cs.bySubject["subj-a"]
	cs.mu.Unlock()
	assert.False(t, stillQueued)
	assert.Equal(t, StateAcked, task.State)
}

func TestAckFailureRetriesUntilMaxAttempts(t *testing.T) {
	d := newTestDispatcher(50 * time.Millisecond)
	sender := &fakeSender{accept: true}
	d.Attach("conn-1", sender)
	d.Deliver("conn-1", "subj-a", 1, &transport.Payload{Type: "X"})

	require.Eventually(t, func() bool { return sender.count() >= 1 }, time.Second, time.Millisecond)

	cs := d.conns["conn-1"]
	cs.mu.Lock()
	task := cs.bySubject["subj-a"]
	cs.mu.Unlock()

	for task.Attempts < d.maxAttempts {
		d.Ack("conn-1", task.ID, false)
		time.Sleep(10 * time.Millisecond)
	}

	require.Eventually(t, func() bool { return task.State == StateFailed }, time.Second, time.Millisecond)
}

func TestDetachDropsConnectionState(t *testing.T) {
	d := newTestDispatcher(time.Second)
	sender := &fakeSender{accept: true}
	d.Attach("conn-1", sender)
	d.Deliver("conn-1", "subj-a", 1, &transport.Payload{Type: "X"})
	d.Detach("conn-1")

	_, ok := d.conns["conn-1"]
	assert.False(t, ok)
	_, ok = d.sendBy["conn-1"]
	assert.False(t, ok)
}

func TestCancelSubjectRemovesTask(t *testing.T) {
	d := newTestDispatcher(time.Second)
	sender := &fakeSender{accept: false}
	d.Attach("conn-1", sender)
	d.Deliver("conn-1", "subj-a", 1, &transport.Payload{Type: "X"})

	d.CancelSubject("conn-1", "subj-a")

	cs := d.conns["conn-1"]
	cs.mu.Lock()
	_, ok := cs.bySubject["subj-a"]
	cs.mu.Unlock()
	assert.False(t, ok)
}
