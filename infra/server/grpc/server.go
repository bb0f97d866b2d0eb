// Package grpc hosts the two RPCs names — the pre-stream
// ServerCheck unary and the long-lived BiRequestStream — wired as a
// hand-registered grpc.ServiceDesc rather than a generated stub, since
// Payload already carries its own type tag and travels over the custom
// JSON codec (internal/transport.CodecName) instead of protobuf wire
// format. This mirrors how a generic gRPC gateway exposes an opaque
// envelope method without compiled.proto stubs.
package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/peer"

	"github.com/batata-io/batata/config"
	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/stream"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/transport"
)

// probeAwaitTimeout is how long the server waits for a ClientDetection
// reply when session.probe_timeout is not set. The multiplexer's own
// per-request timeout also applies to the probe, so the shorter one wins.
const probeAwaitTimeout = 3 * time.Second

func newProbeID(id connection.ID) string {
	return fmt.Sprintf("probe-%s-%d", id, time.Now().UnixNano())
}

// ServiceName is the fully-qualified gRPC service name Batata's clients
// dial, matching "a single service with two methods".
const ServiceName = "batata.v3.Session"

// ServiceDesc is the hand-built grpc.ServiceDesc backing ServiceName; it
// is registered against a *grpc.Server by Module (or directly by tests)
// instead of a protoc-generated RegisterXServer function.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Request", Handler: requestHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "BiRequestStream", Handler: biRequestStreamHandler, ServerStreams: true, ClientStreams: true},
	},
	Metadata: "batata/session.proto",
}

// Server implements the Stream Multiplexer's gRPC-facing half: accepting
// new streams, running the per-connection handshake and recv loop, and
// answering the pre-stream unary check.
type Server struct {
	conn connection.Registrar
	dispatcher *dispatch.Dispatcher
	factory *stream.Factory
	pusher *push.Dispatcher
	types *transport.TypeRegistry
	metrics *telemetry.Metrics
	logger *slog.Logger
	nodeID string
	probeTimeout time.Duration

	sessionsMu sync.RWMutex
	sessions map[string]*stream.Multiplexer
}

func NewServer(conn connection.Registrar, dispatcher *dispatch.Dispatcher, factory *stream.Factory, pusher *push.Dispatcher, types *transport.TypeRegistry, metrics *telemetry.Metrics, logger *slog.Logger, cfg *config.Config) *Server {
	return &Server{
		conn: conn, dispatcher: dispatcher, factory: factory, pusher: pusher,
		types: types, metrics: metrics, logger: logger, nodeID: cfg.NodeID,
		probeTimeout: cfg.Session.ProbeTimeout.Duration,
		sessions: make(map[string]*stream.Multiplexer),
	}
}

// Probe is installed as the Connection Registry's probe callback: it
// sends a server-initiated ClientDetection request over the connection's
// multiplexer and marks the connection Unhealthy if it goes unanswered
// within the probe timeout (or the multiplexer's request timeout, if that
// is shorter).
func (s *Server) Probe(id connection.ID) {
	s.sessionsMu.RLock()
	mux, ok := s.sessions[id.String()]
	s.sessionsMu.RUnlock()
	if !ok {
		return
	}
	go func() {
		payload, err := transport.Encode(transport.TypeClientDetectionRequest, transport.ClientDetectionRequest{})
		if err != nil {
			return
		}
		payload.Set(transport.MetaRequestID, newProbeID(id))
		timeout := s.probeTimeout
		if timeout <= 0 {
			timeout = probeAwaitTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if _, err := mux.SendRequest(ctx, payload); err != nil {
			s.conn.MarkUnhealthy(id)
		}
	}()
}

func (s *Server) attach(id connection.ID, mux *stream.Multiplexer) {
	s.sessionsMu.Lock()
	s.sessions[id.String()] = mux
	s.sessionsMu.Unlock()
	s.pusher.Attach(id.String(), mux)
}

func (s *Server) detach(id connection.ID) {
	s.sessionsMu.Lock()
	delete(s.sessions, id.String())
	s.sessionsMu.Unlock()
	s.pusher.Detach(id.String())
}

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// requestHandler implements the unary "Request" RPC.
// It is intentionally narrow: only the anonymous, connectionless
// internal checks make sense outside a session.
func requestHandler(srvIface any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(transport.Payload)
	if err := dec(in); err != nil {
		return nil, err
	}
	srv := srvIface.(*Server)
	if interceptor == nil {
		return srv.handleUnary(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Request"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.handleUnary(ctx, req.(*transport.Payload))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *Server) handleUnary(ctx context.Context, in *transport.Payload) (*transport.Payload, error) {
	requestID := in.Get(transport.MetaRequestID)
	switch in.Type {
	case transport.TypeServerCheckRequest:
		return transport.Encode(transport.TypeServerCheckResponse, transport.ServerCheckResponse{ConnectionID: ""})
	case transport.TypeHealthCheckRequest:
		return transport.Encode(transport.TypeHealthCheckResponse, transport.HealthCheckResponse{OK: true})
	default:
		return transport.EncodeError(requestID, apperr.KindProtocol.Code(), "unsupported type for unary Request: "+in.Type, ""), nil
	}
}

func biRequestStreamHandler(srvIface any, ss grpc.ServerStream) error {
	return srvIface.(*Server).handleStream(ss)
}
