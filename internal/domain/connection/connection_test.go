package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineTransitions(t *testing.T) {
	c := newConnection(ID{}, Metadata{})
	assert.Equal(t, HandshakePending, c.State())

	require.True(t, c.Activate())
	assert.Equal(t, Active, c.State())

	require.True(t, c.MarkUnhealthy())
	assert.Equal(t, Unhealthy, c.State())

	require.True(t, c.Recover())
	assert.Equal(t, Active, c.State())

	require.True(t, c.Drain())
	assert.Equal(t, Draining, c.State())

	require.True(t, c.Close())
	assert.Equal(t, Closed, c.State())
}

func TestClosedIsTerminal(t *testing.T) {
	c := newConnection(ID{}, Metadata{})
	require.True(t, c.Close())
	assert.False(t, c.Activate())
	assert.False(t, c.Drain())
	assert.False(t, c.MarkUnhealthy())
	assert.Equal(t, Closed, c.State())
}

func TestTransitionToSameStateIsNoop(t *testing.T) {
	c := newConnection(ID{}, Metadata{})
	assert.True(t, c.transition(HandshakePending))
}

func TestRecoverOnlyAppliesFromUnhealthy(t *testing.T) {
	c := newConnection(ID{}, Metadata{})
	require.True(t, c.Activate())
	assert.False(t, c.Recover())
	assert.Equal(t, Active, c.State())
}

func TestAcceptsFrameDuringHandshake(t *testing.T) {
	c := newConnection(ID{}, Metadata{})
	assert.True(t, c.AcceptsFrame(true))
	assert.False(t, c.AcceptsFrame(false))

	c.Activate()
	assert.True(t, c.AcceptsFrame(false))

	c.Close()
	assert.False(t, c.AcceptsFrame(false))
}

func TestTouchBumpsLastActiveAt(t *testing.T) {
	c := newConnection(ID{}, Metadata{})
	before := c.LastActiveAt()
	time.Sleep(time.Millisecond)
	c.Touch()
	assert.True(t, c.LastActiveAt().After(before))
}

func TestApplyHandshakeUpdatesMetadata(t *testing.T) {
	c := newConnection(ID{}, Metadata{PeerAddr: "10.0.0.1:9000"})
	c.ApplyHandshake("v1.2.3", map[string]string{"env": "prod"})
	meta := c.Metadata()
	assert.Equal(t, "v1.2.3", meta.ClientVersion)
	assert.Equal(t, "prod", meta.ClientLabels["env"])
	assert.Equal(t, "10.0.0.1:9000", meta.PeerAddr)
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		HandshakePending: "handshake_pending",
		Active: "active",
		Unhealthy: "unhealthy",
		Draining: "draining",
		Closed: "closed",
		State(99): "unknown",
	}
	for state, want := range cases {
		assert.Equal(t, want, state.String())
	}
}
