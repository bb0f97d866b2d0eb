// Package internalh wires the Internal category of request types:
// handshake, liveness, and administrative control. Each handler is a
// thin dispatch.DomainHandler bound via dispatch.Bind, the same shape the
// teacher's internal/handler/amqp package binds its own DomainHandlers
// with, generalized from "one AMQP routing key" to "one Payload type tag".
package internalh

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/consensus"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/transport"
)

func decodeJSON[T any](body []byte) (*T, error) {
	v := new(T)
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// Handlers bundles the component dependencies every Internal-category
// handler needs; New returns the specs dispatch/module.go's value group
// aggregates.
type Handlers struct {
	Conn connection.Registrar
	Pusher *push.Dispatcher
	Bridge *consensus.Bridge
	Logger *slog.Logger
}

// New builds every Internal-category HandlerSpec.
func New(h Handlers) []dispatch.HandlerSpec {
	return []dispatch.HandlerSpec{
		{
			Tag: transport.TypeConnectionSetupRequest,
			AllowAnonymous: true,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ConnectionSetupRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ConnectionSetupRequest) (any, error) {
					req.Conn.ApplyHandshake(body.ClientVersion, body.Labels)
					req.Conn.Activate()
					return transport.SetupAckResponse{
						ConnectionID: req.Conn.ID().String(),
						ServerAbilities: map[string]bool{"push": true, "config_gray": true},
					}, nil
				}),
		},
		{
			Tag: transport.TypeSetupAckRequest,
			AllowAnonymous: true,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.SetupAckRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.SetupAckRequest) (any, error) {
					req.Conn.Touch()
					return transport.HealthCheckResponse{OK: true}, nil
				}),
		},
		{
			Tag: transport.TypeHealthCheckRequest,
			AllowAnonymous: true,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.HealthCheckRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.HealthCheckRequest) (any, error) {
					h.Conn.Touch(req.Conn.ID())
					return transport.HealthCheckResponse{OK: true}, nil
				}),
		},
		{
			Tag: transport.TypeServerCheckRequest,
			AllowAnonymous: true,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ServerCheckRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ServerCheckRequest) (any, error) {
					return transport.ServerCheckResponse{ConnectionID: req.Conn.ID().String()}, nil
				}),
		},
		{
			Tag: transport.TypeClientDetectionResp,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ClientDetectionResponse],
				func(ctx context.Context, req dispatch.Request, body *transport.ClientDetectionResponse) (any, error) {
					// Normally resolved inline by the multiplexer's pending
					// table (stream.AcceptInbound); reaching here means the
					// correlation already timed out, so there's nothing left
					// to do but record the liveness it still implies.
					req.Conn.Touch()
					return nil, nil
				}),
		},
		{
			Tag: transport.TypeServerLoaderInfoReq,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ServerLoaderInfoRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ServerLoaderInfoRequest) (any, error) {
					return transport.ServerLoaderInfoResponse{
						ConnectionCount: h.Conn.Count(),
						IsLeader: h.Bridge.IsLeader(),
						LeaderHint: h.Bridge.LeaderHint(),
					}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return dispatch.Resource{ResourceType: "server", ResourceName: "loader_info", Action: dispatch.ActionRead}
			},
		},
		{
			Tag: transport.TypeServerReloadRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ServerReloadRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ServerReloadRequest) (any, error) {
					accepted := h.Conn.Drain(req.Conn.ID())
					return transport.ServerReloadResponse{Accepted: accepted}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return dispatch.Resource{ResourceType: "server", ResourceName: "reload", Action: dispatch.ActionWrite}
			},
		},
		{
			Tag: transport.TypePushAckRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.PushAckRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.PushAckRequest) (any, error) {
					h.Pusher.Ack(req.Conn.ID().String(), body.TaskID, body.Success)
					return nil, nil
				}),
		},
	}
}
