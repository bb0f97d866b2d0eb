package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuilderRegisterJSONAndDecode(t *testing.T) {
	b := NewRegistryBuilder()
	RegisterJSON[HealthCheckRequest](b, TypeHealthCheckRequest)
	reg := b.Build()

	require.True(t, reg.Has(TypeHealthCheckRequest))
	v, err := reg.Decode(TypeHealthCheckRequest, []byte("{}"))
	require.NoError(t, err)
	_, ok := v.(*HealthCheckRequest)
	assert.True(t, ok)
}

func TestDecodeUnknownTagReturnsUnsupportedError(t *testing.T) {
	reg := NewRegistryBuilder().Build()
	_, err := reg.Decode("NoSuchType", nil)
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.True(t, decErr.Unsupported)
}

func TestDecodeMalformedBodyWrapsCause(t *testing.T) {
	b := NewRegistryBuilder()
	RegisterJSON[HealthCheckRequest](b, TypeHealthCheckRequest)
	reg := b.Build()

	_, err := reg.Decode(TypeHealthCheckRequest, []byte("not json"))
	require.Error(t, err)
	var decErr *DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.False(t, decErr.Unsupported)
	assert.NotNil(t, decErr.Cause)
}

func TestRegisterPanicsOnDuplicateTag(t *testing.T) {
	b := NewRegistryBuilder()
	RegisterJSON[HealthCheckRequest](b, TypeHealthCheckRequest)
	assert.Panics(t, func() {
		RegisterJSON[HealthCheckRequest](b, TypeHealthCheckRequest)
	})
}

func TestResponseTypeTagMapsKnownResponses(t *testing.T) {
	assert.Equal(t, TypeHealthCheckResponse, ResponseTypeTag(HealthCheckResponse{OK: true}))
	assert.Equal(t, TypeConfigPublishResponse, ResponseTypeTag(ConfigPublishResponse{Revision: 1}))
	assert.Equal(t, TypeNotifySubscriber, ResponseTypeTag(NotifySubscriber{}))
}

func TestResponseTypeTagPanicsOnUnregisteredType(t *testing.T) {
	assert.Panics(t, func() {
		ResponseTypeTag(struct{ X int }{})
	})
}
