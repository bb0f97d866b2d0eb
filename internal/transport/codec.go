package transport

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is registered with grpc's global encoding registry so both
// the Batata server and any Go client built against this package
// transparently exchange Payload frames as JSON instead of protobuf wire
// format. grpc-go supports swapping the wire codec this way natively
// (encoding.RegisterCodec); it's the standard technique reverse proxies
// and generic gRPC gateways use to carry an opaque envelope without
// generated stubs.
const CodecName = "batata-json"

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return CodecName }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	switch msg := v.(type) {
	case *Payload:
		return json.Marshal(msg)
	case json.Marshaler:
		return msg.MarshalJSON()
	default:
		return nil, fmt.Errorf("transport: codec cannot marshal %T", v)
	}
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	switch msg := v.(type) {
	case *Payload:
		return json.Unmarshal(data, msg)
	case json.Unmarshaler:
		return msg.UnmarshalJSON(data)
	default:
		return fmt.Errorf("transport: codec cannot unmarshal into %T", v)
	}
}
