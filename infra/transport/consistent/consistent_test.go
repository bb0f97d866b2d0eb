package consistent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetNEmptyRingErrors(t *testing.T) {
	c := New[string]()
	_, err := c.GetN("key", 1)
	assert.ErrorIs(t, err, ErrEmptyRing)
}

func TestGetNReturnsDistinctMembers(t *testing.T) {
	c := New[string]()
	c.UseFnv = true
	c.Set([]string{"a", "b", "c", "d"})

	out, err := c.GetN("some-key", 3)
	require.NoError(t, err)
	require.Len(t, out, 3)

	seen := map[string]bool{}
	for _, m := range out {
		assert.False(t, seen[m], "members returned by GetN must be distinct")
		seen[m] = true
	}
}

func TestGetNClampsToMemberCount(t *testing.T) {
	c := New[string]()
	c.Set([]string{"a", "b"})

	out, err := c.GetN("key", 10)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestGetNIsStableForSameKey(t *testing.T) {
	c := New[string]()
	c.UseFnv = true
	c.Set([]string{"a", "b", "c", "d", "e"})

	first, err := c.GetN("stable-key", 2)
	require.NoError(t, err)
	second, err := c.GetN("stable-key", 2)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSetRebuildsRingWholesale(t *testing.T) {
	c := New[string]()
	c.Set([]string{"a", "b"})
	out1, _ := c.GetN("k", 2)

	c.Set([]string{"c", "d"})
	out2, _ := c.GetN("k", 2)

	assert.ElementsMatch(t, []string{"c", "d"}, out2)
	assert.NotEqual(t, out1, out2)
}
