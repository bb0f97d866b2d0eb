// Package transport defines the wire envelope every frame travels in
// and the process-wide type-tag registry used to decode it. It
// is the Payload Codec component: envelope <-> typed request/response
// conversion plus the type-tag -> decoder registry.
package transport

import "encoding/json"

// Payload is the language-neutral envelope carried on every frame: a
// type tag, an opaque body, and a metadata map. The teacher's wire
// format is buf-generated protobuf; this module instead carries Payload
// as a JSON-bodied gRPC message encoded by a custom codec (see codec.go)
// since no protoc/buf toolchain is available in this environment to
// regenerate typed stubs.
type Payload struct {
	Type string `json:"type"`
	Body []byte `json:"body"`
	Metadata map[string]string `json:"metadata"`
}

// Required metadata keys
const (
	MetaRequestID = "request_id"
	MetaLeaderHint = "leader_hint"
	MetaConnectionID = "connection_id"
	MetaClientIP = "client_ip"
	MetaAccessToken = "access_token"
)

// TypeErrorResponse is the type tag carried by every non-success
// response payload.
const TypeErrorResponse = "ErrorResponse"

func (p *Payload) Get(key string) string {
	if p == nil || p.Metadata == nil {
		return ""
	}
	return p.Metadata[key]
}

func (p *Payload) Set(key, value string) {
	if p.Metadata == nil {
		p.Metadata = make(map[string]string, 4)
	}
	p.Metadata[key] = value
}

// Encode builds the outbound Payload for a server-initiated message
// (pushes, long-listen notifies, fuzzy syncs), the mirror of RegisterJSON
// on the decode side.
func Encode(typeTag string, v any) (*Payload, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Payload{Type: typeTag, Body: body}, nil
}

// ErrorBody is the JSON body used for every non-success response:
// {code, message}. LeaderHint is surfaced in Metadata, not this body.
type ErrorBody struct {
	Code int32 `json:"code"`
	Message string `json:"message"`
}

// EncodeError builds the error-class response Payload for code/message,
// echoing requestID and carrying leaderHint in Metadata when non-empty.
func EncodeError(requestID string, code int32, message, leaderHint string) *Payload {
	body, _ := json.Marshal(ErrorBody{Code: code, Message: message})
	p := &Payload{Type: TypeErrorResponse, Body: body}
	p.Set(MetaRequestID, requestID)
	if leaderHint != "" {
		p.Set(MetaLeaderHint, leaderHint)
	}
	return p
}
