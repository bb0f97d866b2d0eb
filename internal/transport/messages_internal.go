package transport

// Internal category messages: handshake, liveness, and
// administrative control. ConnectionSetup, SetupAck, HealthCheck and
// ServerCheck are the request types the dispatcher allows before
// authentication (AllowAnonymous in internal/handler/internalh).

const (
	TypeConnectionSetupRequest = "ConnectionSetupRequest"
	TypeSetupAckResponse = "SetupAckResponse"
	TypeSetupAckRequest = "SetupAckRequest"
	TypeHealthCheckRequest = "HealthCheckRequest"
	TypeHealthCheckResponse = "HealthCheckResponse"
	TypeServerCheckRequest = "ServerCheckRequest"
	TypeServerCheckResponse = "ServerCheckResponse"
	TypeClientDetectionRequest = "ClientDetectionRequest"
	TypeClientDetectionResp = "ClientDetectionResponse"
	TypeConnectResetRequest = "ConnectResetRequest"
	TypeServerLoaderInfoReq = "ServerLoaderInfoRequest"
	TypeServerLoaderInfoResp = "ServerLoaderInfoResponse"
	TypeServerReloadRequest = "ServerReloadRequest"
	TypeServerReloadResponse = "ServerReloadResponse"
	TypePushAckRequest = "PushAckRequest"
)

// ConnectionSetupRequest is handshake frame 1.
type ConnectionSetupRequest struct {
	ClientVersion string `json:"client_version"`
	Labels map[string]string `json:"labels"`
	Abilities map[string]bool `json:"abilities"`
}

// SetupAckResponse is handshake frame 2: the server-assigned connection id.
type SetupAckResponse struct {
	ConnectionID string `json:"connection_id"`
	ServerAbilities map[string]bool `json:"server_abilities"`
}

// SetupAckRequest is handshake frame 3, confirming receipt.
type SetupAckRequest struct {
	ConnectionID string `json:"connection_id"`
}

type HealthCheckRequest struct{}
type HealthCheckResponse struct{ OK bool `json:"ok"` }

// ServerCheckRequest is the pre-stream unary liveness probe.
type ServerCheckRequest struct{}
type ServerCheckResponse struct {
	ConnectionID string `json:"connection_id"`
}

// ClientDetectionRequest is server-initiated. The
// multiplexer correlates the response via request_id on the client side.
type ClientDetectionRequest struct{}
type ClientDetectionResponse struct{}

// ConnectResetRequest is a server push instructing the client to
// reconnect, optionally to a different node.
type ConnectResetRequest struct {
	RedirectAddr string `json:"redirect_addr,omitempty"`
	Reason string `json:"reason,omitempty"`
}

type ServerLoaderInfoRequest struct{}
type ServerLoaderInfoResponse struct {
	NodeID string `json:"node_id"`
	ConnectionCount int `json:"connection_count"`
	IsLeader bool `json:"is_leader"`
	LeaderHint string `json:"leader_hint,omitempty"`
}

// ServerReloadRequest triggers administrative Draining.
type ServerReloadRequest struct {
	Reason string `json:"reason,omitempty"`
}
type ServerReloadResponse struct{ Accepted bool `json:"accepted"` }

// PushAckRequest acknowledges a prior server push.
type PushAckRequest struct {
	TaskID string `json:"task_id"`
	Success bool `json:"success"`
	Error string `json:"error,omitempty"`
}

// RegisterInternalTypes wires every Internal-category message into the
// shared builder.
func RegisterInternalTypes(b *RegistryBuilder) *RegistryBuilder {
	RegisterJSON[ConnectionSetupRequest](b, TypeConnectionSetupRequest)
	RegisterJSON[SetupAckRequest](b, TypeSetupAckRequest)
	RegisterJSON[HealthCheckRequest](b, TypeHealthCheckRequest)
	RegisterJSON[ServerCheckRequest](b, TypeServerCheckRequest)
	RegisterJSON[ClientDetectionResponse](b, TypeClientDetectionResp)
	RegisterJSON[ServerLoaderInfoRequest](b, TypeServerLoaderInfoReq)
	RegisterJSON[ServerReloadRequest](b, TypeServerReloadRequest)
	RegisterJSON[PushAckRequest](b, TypePushAckRequest)
	return b
}
