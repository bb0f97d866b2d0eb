package transport

import (
	"encoding/json"
	"fmt"
)

// Decoder turns a Payload's raw body into a typed request value.
type Decoder func(body []byte) (any, error)

// TypeRegistry is the process-wide, immutable type-tag -> decoder map.
// It is built once at startup via RegistryBuilder and never mutated
// afterward; concurrent reads need no locking because the map is never
// written to after Build.
type TypeRegistry struct {
	decoders map[string]Decoder
}

// Decode looks up the tag and decodes body into the registered type.
// Unknown tags and decode failures both return a *DecodeError so callers
// can distinguish ErrorKind::UnsupportedType from a malformed body
// without the stream ever tearing down.
func (r *TypeRegistry) Decode(tag string, body []byte) (any, error) {
	dec, ok := r.decoders[tag]
	if !ok {
		return nil, &DecodeError{Tag: tag, Unsupported: true}
	}
	v, err := dec(body)
	if err != nil {
		return nil, &DecodeError{Tag: tag, Cause: err}
	}
	return v, nil
}

// Has reports whether tag has a registered decoder.
func (r *TypeRegistry) Has(tag string) bool {
	_, ok := r.decoders[tag]
	return ok
}

// DecodeError is returned inline as a response payload —
// it never terminates the stream.
type DecodeError struct {
	Tag string
	Unsupported bool
	Cause error
}

func (e *DecodeError) Error() string {
	if e.Unsupported {
		return fmt.Sprintf("transport: unsupported type %q", e.Tag)
	}
	return fmt.Sprintf("transport: decode %q: %v", e.Tag, e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

// RegistryBuilder accumulates type-tag registrations before the registry
// is frozen. Construct one, call Register for every message type, then
// Build once at startup.
type RegistryBuilder struct {
	decoders map[string]Decoder
}

func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{decoders: make(map[string]Decoder)}
}

// Register adds a raw decoder for tag. Panics on duplicate registration
// since that can only be a programming error at startup, never a runtime
// condition.
func (b *RegistryBuilder) Register(tag string, dec Decoder) *RegistryBuilder {
	if _, exists := b.decoders[tag]; exists {
		panic(fmt.Sprintf("transport: duplicate registration for %q", tag))
	}
	b.decoders[tag] = dec
	return b
}

// Build freezes the builder into an immutable TypeRegistry.
func (b *RegistryBuilder) Build() *TypeRegistry {
	frozen := make(map[string]Decoder, len(b.decoders))
	for k, v := range b.decoders {
		frozen[k] = v
	}
	return &TypeRegistry{decoders: frozen}
}

// RegisterJSON registers a decoder for T that JSON-unmarshals the body
// into a freshly-allocated *T, covering the common case where a request
// type has no custom decode logic.
func RegisterJSON[T any](b *RegistryBuilder, tag string) *RegistryBuilder {
	return b.Register(tag, func(body []byte) (any, error) {
		v := new(T)
		if len(body) > 0 {
			if err := json.Unmarshal(body, v); err != nil {
				return nil, err
			}
		}
		return v, nil
	})
}
