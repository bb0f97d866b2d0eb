package grpc

import (
	"context"
	"errors"
	"io"

	"google.golang.org/grpc"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/stream"
	"github.com/batata-io/batata/internal/transport"
)

// streamSender adapts a grpc.ServerStream to stream.Sender so the
// Multiplexer's single drain goroutine is the only thing that ever calls
// SendMsg single-writer discipline.
type streamSender struct{ ss grpc.ServerStream }

func (s streamSender) Send(p *transport.Payload) error { return s.ss.SendMsg(p) }

// handleStream is the entire lifecycle of one BiRequestStream: register a
// Connection, attach its Multiplexer, run the recv loop until the stream
// ends, and unwind.
func (s *Server) handleStream(ss grpc.ServerStream) error {
	ctx := ss.Context()
	conn := s.conn.Register(connection.Metadata{PeerAddr: peerAddr(ctx)})
	id := conn.ID()

	mux := s.factory.New(id, streamSender{ss})
	s.attach(id, mux)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go mux.Run(runCtx)

	s.logger.Info("stream opened", "connection_id", id.String(), "peer", conn.Metadata().PeerAddr)

	reason := "stream closed"
	defer func() {
		mux.Close()
		s.detach(id)
		s.conn.Evict(id, reason)
		s.logger.Info("stream closed", "connection_id", id.String(), "reason", reason)
	}()

	for {
		in := new(transport.Payload)
		if err := ss.RecvMsg(in); err != nil {
			if !errors.Is(err, io.EOF) {
				reason = err.Error()
			}
			return nil
		}

		in.Set(transport.MetaConnectionID, id.String())
		if in.Get(transport.MetaClientIP) == "" {
			in.Set(transport.MetaClientIP, conn.Metadata().PeerAddr)
		}
		requestID := in.Get(transport.MetaRequestID)

		if !s.types.Has(in.Type) {
			mux.Enqueue(transport.EncodeError(requestID, apperr.KindProtocol.Code(), "unsupported type: "+in.Type, ""), stream.PriorityResponse)
			continue
		}

		isHandshake := in.Type == transport.TypeConnectionSetupRequest
		if !conn.AcceptsFrame(isHandshake) {
			mux.Enqueue(transport.EncodeError(requestID, apperr.KindProtocol.Code(), "handshake required before "+in.Type, ""), stream.PriorityResponse)
			continue
		}
		s.conn.Touch(id)

		if _, needsDispatch := mux.AcceptInbound(in); !needsDispatch {
			continue // a server-initiated request's response, already resolved
		}

		if !mux.TryAcquire() {
			mux.Enqueue(transport.EncodeError(requestID, apperr.KindResource.Code(), "too many in-flight requests", ""), stream.PriorityResponse)
			continue
		}

		go s.serve(ctx, conn, mux, in, requestID)
	}
}

// serve runs one decoded frame through Handler Dispatch and turns its
// result back into a wire Payload.
func (s *Server) serve(ctx context.Context, conn *connection.Connection, mux *stream.Multiplexer, in *transport.Payload, requestID string) {
	defer mux.Release()

	req := dispatch.Request{Conn: conn, Payload: in, Auth: principalFor(in)}
	resp, err := s.dispatcher.Dispatch(ctx, req)
	if err != nil {
		e := apperr.Classify(err)
		mux.Enqueue(transport.EncodeError(requestID, e.Kind.Code(), e.Message, e.LeaderHint), stream.PriorityResponse)
		return
	}
	if resp == nil {
		return
	}
	out, encErr := transport.Encode(transport.ResponseTypeTag(resp), resp)
	if encErr != nil {
		s.logger.Error("response encode failed", "type", in.Type, "error", encErr)
		return
	}
	out.Set(transport.MetaRequestID, requestID)
	mux.Enqueue(out, stream.PriorityResponse)
}

// principalFor synthesizes an allow-all Principal from a non-empty
// access_token. Real identity/policy resolution is out of scope here: the
// core only ever consumes an already-validated principal, and no
// identity provider ships in this tree, so any bearer of a non-empty token
// is treated as fully authorized, the way an internal trusted-network
// deployment might run before fronting this service with a real authn
// proxy.
func principalFor(p *transport.Payload) *dispatch.Principal {
	token := p.Get(transport.MetaAccessToken)
	if token == "" {
		return nil
	}
	return &dispatch.Principal{
		Subject: token,
		Policies: []dispatch.Policy{
			{NamespacePattern: "*", GroupPattern: "*", TypePattern: "*", Actions: []dispatch.Action{dispatch.ActionRead, dispatch.ActionWrite}},
		},
	}
}
