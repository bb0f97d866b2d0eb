package push

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v3"

	"github.com/batata-io/batata/internal/domain/stream"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/transport"
)

// Sender is the subset of Multiplexer the dispatcher needs: enqueue a
// push frame and correlate a future ack/timeout. Defined locally so push
// stays unit-testable without a real gRPC stream.
type Sender interface {
	Enqueue(p *transport.Payload, pr stream.Priority) bool
}

// connState is one connection's outbound push bookkeeping: its bounded
// queue and the active task per
// subject used for supersession.
type connState struct {
	mu sync.Mutex
	bySubject map[string]*Task // subjectKey -> active task
	order []string // FIFO of subjectKeys, for oldest-first eviction
}

func newConnState() *connState {
	return &connState{bySubject: make(map[string]*Task)}
}

// Dispatcher is the Push Dispatcher component.
type Dispatcher struct {
	mu sync.Mutex
	conns map[string]*connState
	sendBy map[string]Sender

	maxQueued int
	ackTimeout time.Duration
	maxAttempts int
	initialBackoff time.Duration
	maxBackoff time.Duration

	metrics *telemetry.Metrics
	logger *slog.Logger
}

func NewDispatcher(maxQueued int, ackTimeout time.Duration, maxAttempts int, initialBackoff, maxBackoff time.Duration, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	if maxQueued <= 0 {
		maxQueued = 1024
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Dispatcher{
		conns: make(map[string]*connState),
		sendBy: make(map[string]Sender),
		maxQueued: maxQueued,
		ackTimeout: ackTimeout,
		maxAttempts: maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff: maxBackoff,
		metrics: metrics,
		logger: logger,
	}
}

// Attach binds a connection id to the Sender (its Stream Multiplexer)
// that will actually carry its frames, called when the connection's
// stream opens, before any handshake frame is processed. Detach removes
// it on close, dropping every outstanding task for that connection.
func (d *Dispatcher) Attach(connID string, sender Sender) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sendBy[connID] = sender
	if _, ok := d.conns[connID]; !ok {
		d.conns[connID] = newConnState()
	}
}

func (d *Dispatcher) Detach(connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.sendBy, connID)
	delete(d.conns, connID)
}

// Deliver implements subscription.Sink: it is called once per
// (connection, subject) by the coalesced Subscription Index flush.
// Implements supersession rule: a later revision cancels an
// in-flight-but-still-Queued task for the same subject on the same
// connection.
func (d *Dispatcher) Deliver(connID, subjectKey string, revision uint64, payload *transport.Payload) {
	d.mu.Lock()
	sender, hasSender := d.sendBy[connID]
	cs, ok := d.conns[connID]
	if !ok {
		cs = newConnState()
		d.conns[connID] = cs
	}
	d.mu.Unlock()
	if !hasSender {
		return // connection closed between render and delivery
	}

	task := &Task{
		ID: newTaskID(),
		ConnID: connID,
		SubjectID: subjectKey,
		Revision: revision,
		TypeTag: payload.Type,
		Body: payload.Body,
		Deadline: time.Now().Add(d.ackTimeout),
		State: StateQueued,
	}

	cs.mu.Lock()
	if existing, ok := cs.bySubject[subjectKey]; ok && existing.State == StateQueued {
		existing.cancelled = true // superseded: cancel the queued predecessor
	} else if !ok {
		cs.order = append(cs.order, subjectKey)
	}
	if len(cs.bySubject) >= d.maxQueued {
		d.evictOldestLocked(cs)
	}
	cs.bySubject[subjectKey] = task
	cs.mu.Unlock()

	d.send(sender, task)
}

// evictOldestLocked drops the oldest non-control task to make room,
// incrementing PushDropped. Caller holds
// cs.mu.
func (d *Dispatcher) evictOldestLocked(cs *connState) {
	for len(cs.order) > 0 {
		oldest := cs.order[0]
		cs.order = cs.order[1:]
		if t, ok := cs.bySubject[oldest]; ok {
			delete(cs.bySubject, oldest)
			t.cancelled = true
			if d.metrics != nil {
				d.metrics.PushDropped.Add(context.Background(), 1)
			}
			return
		}
	}
}

func (d *Dispatcher) send(sender Sender, task *Task) {
	if task.cancelled {
		return
	}
	task.State = StateInFlight
	task.Attempts++

	p := &transport.Payload{Type: task.TypeTag, Body: task.Body}
	p.Set(transport.MetaRequestID, task.ID)
	if !sender.Enqueue(p, stream.PriorityPush) {
		task.State = StateQueued // never reached the wire; still supersedable
		d.retryOrFail(sender, task)
		return
	}
	if d.metrics != nil {
		d.metrics.PushEnqueued.Add(context.Background(), 1)
	}
	time.AfterFunc(d.ackTimeout, func() { d.onTimeout(sender, task) })
}

func (d *Dispatcher) onTimeout(sender Sender, task *Task) {
	if task.State != StateInFlight || task.cancelled {
		return
	}
	d.retryOrFail(sender, task)
}

// Ack applies a client PushAck to the matching task.
func (d *Dispatcher) Ack(connID, taskID string, success bool) {
	d.mu.Lock()
	cs, ok := d.conns[connID]
	d.mu.Unlock()
	if !ok {
		return
	}
	cs.mu.Lock()
	var match *Task
	var subjectKey string
	for k, t := range cs.bySubject {
		if t.ID == taskID {
			match, subjectKey = t, k
			break
		}
	}
	if match != nil && success {
		delete(cs.bySubject, subjectKey)
		match.State = StateAcked
	}
	cs.mu.Unlock()

	if match == nil {
		return
	}
	if success {
		if d.metrics != nil {
			d.metrics.PushAcked.Add(context.Background(), 1)
		}
		return
	}
	d.mu.Lock()
	sender := d.sendBy[connID]
	d.mu.Unlock()
	if sender != nil {
		d.retryOrFail(sender, match)
	}
}

// retryOrFail schedules the next send after an exponential backoff from
// cenkalti/backoff (initialBackoff multiplied by 3 per attempt, capped at
// maxBackoff: 100ms, then 300ms with the defaults), and drops the task
// once it is cancelled or has used maxAttempts sends.
func (d *Dispatcher) retryOrFail(sender Sender, task *Task) {
	if task.cancelled || task.Attempts >= d.maxAttempts {
		task.State = StateFailed
		d.forget(task)
		if d.metrics != nil {
			d.metrics.PushDropped.Add(context.Background(), 1)
		}
		return
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = d.initialBackoff
	bo.MaxInterval = d.maxBackoff
	bo.Multiplier = 3 // 100ms -> 300ms -> 900ms, capped at maxBackoff (1s default)
	bo.RandomizationFactor = 0
	delay := bo.NextBackOff()
	for i := 1; i < task.Attempts; i++ {
		delay = bo.NextBackOff()
	}

	if d.metrics != nil {
		d.metrics.PushRetried.Add(context.Background(), 1)
	}
	time.AfterFunc(delay, func() { d.send(sender, task) })
}

func (d *Dispatcher) forget(task *Task) {
	d.mu.Lock()
	cs, ok := d.conns[task.ConnID]
	d.mu.Unlock()
	if !ok {
		return
	}
	cs.mu.Lock()
	if cur, ok := cs.bySubject[task.SubjectID]; ok && cur == task {
		delete(cs.bySubject, task.SubjectID)
	}
	cs.mu.Unlock()
}

// CancelSubject marks the in-flight-or-queued task for (connID, subjectKey)
// cancelled, used when a subscription is withdrawn.
func (d *Dispatcher) CancelSubject(connID, subjectKey string) {
	d.mu.Lock()
	cs, ok := d.conns[connID]
	d.mu.Unlock()
	if !ok {
		return
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if t, ok := cs.bySubject[subjectKey]; ok {
		t.cancelled = true
		delete(cs.bySubject, subjectKey)
	}
}
