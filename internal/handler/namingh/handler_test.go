package namingh

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/transport"
)

func TestSubsetInstancesUnderLimitReturnsAll(t *testing.T) {
	instances := []transport.InstanceDTO{
		{IP: "10.0.0.1", Port: 1},
		{IP: "10.0.0.2", Port: 2},
	}
	out := subsetInstances("conn-1", instances, 5)
	assert.Equal(t, instances, out)
}

func TestSubsetInstancesBoundsToMaxN(t *testing.T) {
	instances := make([]transport.InstanceDTO, 0, 10)
	for i := 0; i < 10; i++ {
		instances = append(instances, transport.InstanceDTO{IP: "10.0.0.1", Port: int32(i)})
	}
	out := subsetInstances("conn-1", instances, 3)
	require.Len(t, out, 3)
}

func TestSubsetInstancesIsStablePerConnection(t *testing.T) {
	instances := make([]transport.InstanceDTO, 0, 10)
	for i := 0; i < 10; i++ {
		instances = append(instances, transport.InstanceDTO{IP: "10.0.0.1", Port: int32(i)})
	}
	first := subsetInstances("conn-stable", instances, 4)
	second := subsetInstances("conn-stable", instances, 4)
	assert.Equal(t, first, second)
}

func TestSubsetInstancesZeroMaxReturnsAll(t *testing.T) {
	instances := []transport.InstanceDTO{{IP: "10.0.0.1", Port: 1}}
	out := subsetInstances("conn-1", instances, 0)
	assert.Equal(t, instances, out)
}
