package stream

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/transport"
)

// Sender abstracts the gRPC server stream's SendMsg, so Multiplexer has
// no direct grpc dependency and stays unit-testable.
type Sender interface {
	Send(*transport.Payload) error
}

// Multiplexer owns the outbound queue and pending-request table for one
// connection, and is the only goroutine allowed to call Sender.Send —
// generalizing the teacher's single sendCh-per-connect discipline
// (internal/domain/model/connect.go) into an explicit priority queue plus
// a dedicated drain loop, the way the laserstream SDK dedicates one
// goroutine to its writeChan.
type Multiplexer struct {
	connID connection.ID
	sender Sender
	queue *OutboundQueue
	pending *PendingTable

	notify chan struct{}

	maxInFlight int32
	inFlight int32

	closed atomic.Bool
	closeMu sync.Mutex
	doneCh chan struct{}
}

type Options struct {
	OutboundBuffer int
	RequestTimeout time.Duration
	MaxInFlight int
}

func New(connID connection.ID, sender Sender, opts Options) *Multiplexer {
	if opts.OutboundBuffer <= 0 {
		opts.OutboundBuffer = 256
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 128
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 3 * time.Second
	}
	m := &Multiplexer{
		connID: connID,
		sender: sender,
		queue: NewOutboundQueue(opts.OutboundBuffer),
		pending: NewPendingTable(opts.RequestTimeout),
		notify: make(chan struct{}, 1),
		maxInFlight: int32(opts.MaxInFlight),
		doneCh: make(chan struct{}),
	}
	return m
}

// Run drains the outbound queue until ctx is cancelled or Close is
// called; intended to be the sole goroutine writing to Sender.
func (m *Multiplexer) Run(ctx context.Context) {
	defer close(m.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.notify:
			m.drain(ctx)
		}
	}
}

func (m *Multiplexer) drain(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		f := m.queue.Pop()
		if f == nil {
			return
		}
		if err := m.sender.Send(f.Payload); err != nil {
			// A transport-level send failure means the stream itself is
			// broken; the caller (the gRPC handler loop) observes the
			// same error from RecvMsg/SendMsg and tears the connection
			// down. The multiplexer doesn't retry sends.
			return
		}
	}
}

// Enqueue queues an outbound frame, waking the drain loop. Returns false
// if the queue was full and this frame (or a lower one it displaced
// nothing for) was dropped.
func (m *Multiplexer) Enqueue(p *transport.Payload, pr Priority) bool {
	if m.closed.Load() {
		return false
	}
	accepted, _ := m.queue.Push(&OutboundFrame{Payload: p, Priority: pr, enqueuedAt: time.Now()})
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return accepted
}

// SendRequest enqueues a server-initiated request and blocks for its
// correlated response or the configured timeout.
func (m *Multiplexer) SendRequest(ctx context.Context, p *transport.Payload) (*transport.Payload, error) {
	requestID := p.Get(transport.MetaRequestID)
	if requestID == "" {
		return nil, apperr.New(apperr.KindInternal, "SendRequest requires a request_id")
	}
	if !m.Enqueue(p, PriorityControl) {
		return nil, apperr.New(apperr.KindTransport, "outbound queue full")
	}
	resultCh := make(chan struct {
		p *transport.Payload
		err error
	}, 1)
	go func() {
		resp, err := m.pending.Await(requestID)
		resultCh <- struct {
			p *transport.Payload
			err error
		}{resp, err}
	}()
	select {
	case r := <-resultCh:
		return r.p, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcceptInbound classifies a frame fresh off the wire. Responses are
// routed to the pending table and consumed here; requests/acks are
// returned to the caller (Handler Dispatch) for routing.
func (m *Multiplexer) AcceptInbound(p *transport.Payload) (FrameKind, bool) {
	kind := ClassifyInbound(p, m.pending)
	if kind == KindResponse {
		requestID := p.Get(transport.MetaRequestID)
		m.pending.Resolve(requestID, p)
		return kind, false
	}
	return kind, true
}

// TryAcquire reserves one of maxInFlight concurrent handler slots.
func (m *Multiplexer) TryAcquire() bool {
	for {
		cur := atomic.LoadInt32(&m.inFlight)
		if cur >= m.maxInFlight {
			return false
		}
		if atomic.CompareAndSwapInt32(&m.inFlight, cur, cur+1) {
			return true
		}
	}
}

func (m *Multiplexer) Release() { atomic.AddInt32(&m.inFlight, -1) }

// Close cancels every pending request and stops accepting new outbound
// frames. Idempotent.
func (m *Multiplexer) Close() {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Swap(true) {
		return
	}
	m.pending.CancelAll(apperr.New(apperr.KindTransport, "connection closed"))
}

func (m *Multiplexer) Done() <-chan struct{} { return m.doneCh }
