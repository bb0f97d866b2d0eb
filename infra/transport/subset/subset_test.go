package subset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsetReturnsAllWhenUnderLimit(t *testing.T) {
	instances := []string{"a", "b", "c"}
	out := Subset("key", instances, 5)
	assert.Equal(t, instances, out)
}

func TestSubsetBoundsSizeWhenOverLimit(t *testing.T) {
	instances := []string{"a", "b", "c", "d", "e", "f"}
	out := Subset("key", instances, 3)
	require.Len(t, out, 3)
	for _, m := range out {
		assert.Contains(t, instances, m)
	}
}

func TestSubsetIsStableForSameKey(t *testing.T) {
	instances := []string{"a", "b", "c", "d", "e", "f"}
	first := Subset("key-1", instances, 2)
	second := Subset("key-1", instances, 2)
	assert.ElementsMatch(t, first, second)
}

func TestSubsetDifferentKeysCanDifferButStaySubset(t *testing.T) {
	instances := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	out := Subset("another-key", instances, 2)
	require.Len(t, out, 2)
	for _, m := range out {
		assert.Contains(t, instances, m)
	}
}
