// Package apperr defines the closed error taxonomy shared by every handler
// and domain component. Handlers never let a downstream error escape
// untyped: they classify it into one of these kinds before it is turned
// into a response payload.
package apperr

import (
	"errors"
	"fmt"
)

// Kind partitions errors into the response-code classes the wire protocol
// exposes.
type Kind int

const (
	KindUnknown Kind = iota
	KindProtocol
	KindAuthentication
	KindAuthorization
	KindValidation
	KindState
	KindResource
	KindConsensus
	KindTransport
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "protocol"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindResource:
		return "resource"
	case KindConsensus:
		return "consensus"
	case KindTransport:
		return "transport"
	case KindInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Code returns the numeric wire code for a Kind:
// 0 success; 40x client and auth errors; 45x rate limiting; 50x internal;
// 51x consensus. A not-leader error is a Consensus error (510) carrying
// its LeaderHint; no Kind maps to a separate 52x code.
func (k Kind) Code() int32 {
	switch k {
	case KindAuthentication:
		return 401
	case KindAuthorization:
		return 403
	case KindValidation:
		return 400
	case KindState:
		return 409
	case KindResource:
		return 450
	case KindConsensus:
		return 510
	case KindProtocol:
		return 400
	case KindTransport:
		return 500
	case KindInternal:
		return 500
	default:
		return 500
	}
}

// Error is the typed error value carried through the system. It wraps an
// underlying cause (possibly nil) and a fixed Kind, and optionally a
// LeaderHint for consensus-not-leader redirection and
// a CurrentRevision for State errors that need to help the client resync.
type Error struct {
	Kind Kind
	Message string
	Cause error
	LeaderHint string
	CurrentRevision uint64
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func NotLeader(hint string) *Error {
	return &Error{Kind: KindConsensus, Message: "not leader", LeaderHint: hint}
}

func StaleRevision(current uint64) *Error {
	return &Error{Kind: KindState, Message: "stale revision", CurrentRevision: current}
}

// Classify maps an arbitrary error to its Kind, defaulting to Internal for
// anything that isn't already an *Error. Used by the multiplexer's
// top-level catcher so no unexpected condition ever escapes as an untyped
// panic or bare error.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Message: "unclassified error", Cause: err}
}
