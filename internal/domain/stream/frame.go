// Package stream implements the Stream Multiplexer component: it owns
// the single outbound writer goroutine for a connection's bidi gRPC
// stream, classifies inbound frames into requests/acks/responses, and
// correlates server-initiated requests with their eventual replies.
// Structurally this generalizes the teacher's internal/domain/model.Connector
// (a single send channel with priority-aware backpressure) into a
// priority-tiered queue, and borrows the single-writer-owns-the-stream
// discipline from the laserstream SDK's writeChan pattern.
package stream

import (
	"time"

	"github.com/batata-io/batata/internal/transport"
)

// Priority controls which outbound tier a frame is queued into:
// Control > Response > Push > Ack, FIFO within tier.
type Priority int8

const (
	PriorityControl Priority = iota
	PriorityResponse
	PriorityPush
	PriorityAck
)

func (p Priority) String() string {
	switch p {
	case PriorityControl:
		return "control"
	case PriorityResponse:
		return "response"
	case PriorityPush:
		return "push"
	case PriorityAck:
		return "ack"
	default:
		return "unknown"
	}
}

// OutboundFrame is one envelope queued for delivery on a connection's
// single writer goroutine.
type OutboundFrame struct {
	Payload *transport.Payload
	Priority Priority
	// enqueuedAt and seq back the heap ordering (FIFO within a tier).
	enqueuedAt time.Time
	seq uint64
}

// FrameKind classifies an inbound frame for dispatch routing.
type FrameKind int8

const (
	KindRequest FrameKind = iota
	KindResponse
	KindAck
)

// ClassifyInbound decides whether a decoded payload is a fresh request
// needing dispatch, a response correlated to a server-initiated request,
// or a PushAck.
func ClassifyInbound(p *transport.Payload, pending *PendingTable) FrameKind {
	if p.Type == transport.TypePushAckRequest {
		return KindAck
	}
	if pending.Has(p.Get(transport.MetaRequestID)) {
		return KindResponse
	}
	return KindRequest
}
