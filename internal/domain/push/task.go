// Package push implements the Push Dispatcher component: a
// bounded per-connection outbound task queue, ack tracking, retry with
// backoff, and revision-based supersession. It sits downstream of the
// Subscription Index and upstream of the Stream Multiplexer's outbound
// queue, generalizing the teacher's Cell mailbox (push once, fire and
// forget) into a tracked unit of work that must be acked or retried.
package push

import (
	"time"

	"github.com/google/uuid"
)

// AckCode is the closed set of PushAck outcomes. Resolved in DESIGN.md.
type AckCode int8

const (
	AckSuccess AckCode = iota
	AckClientRejected
	AckTimeout
	AckConnectionClosed
	AckSuperseded
)

// State is a PushTask's lifecycle.
type State int8

const (
	StateQueued State = iota
	StateInFlight
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateInFlight:
		return "in_flight"
	case StateAcked:
		return "acked"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Task is one outbound notification tracked until it is acked, times
// out, or is superseded by a later revision for the same subject on the
// same connection.
type Task struct {
	ID string
	ConnID string
	SubjectID string // opaque key shared with subscription.Subject.Key
	Revision uint64
	Body []byte
	TypeTag string

	Attempts int
	Deadline time.Time
	State State

	cancelled bool
}

func newTaskID() string { return uuid.NewString() }
