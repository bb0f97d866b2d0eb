package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndGet(t *testing.T) {
	r := New()
	defer r.Shutdown()

	c := r.Register(Metadata{PeerAddr: "1.2.3.4:1"})
	got, ok := r.Get(c.ID())
	require.True(t, ok)
	assert.Equal(t, c, got)
	assert.Equal(t, 1, r.Count())
}

func TestEvictRemovesAndClosesAndPublishes(t *testing.T) {
	r := New()
	defer r.Shutdown()

	ch, unsub := r.Subscribe(4)
	defer unsub()

	c := r.Register(Metadata{})
	opened := <-ch
	assert.Equal(t, EventOpened, opened.Kind)
	assert.Equal(t, c.ID(), opened.ID)

	r.Evict(c.ID(), "test reason")

	closed := <-ch
	assert.Equal(t, EventClosed, closed.Kind)
	assert.Equal(t, "test reason", closed.Reason)
	assert.Equal(t, Closed, c.State())

	_, ok := r.Get(c.ID())
	assert.False(t, ok)
	assert.Equal(t, 0, r.Count())
}

func TestTouchRecoversUnhealthyConnection(t *testing.T) {
	r := New()
	defer r.Shutdown()

	c := r.Register(Metadata{})
	c.Activate()
	c.MarkUnhealthy()
	require.Equal(t, Unhealthy, c.State())

	r.Touch(c.ID())
	assert.Equal(t, Active, c.State())
}

func TestDrainUnknownConnectionReturnsFalse(t *testing.T) {
	r := New()
	defer r.Shutdown()
	assert.False(t, r.Drain(ID{}))
}

func TestIterByLabelMatchesSuperset(t *testing.T) {
	r := New()
	defer r.Shutdown()

	a := r.Register(Metadata{ClientLabels: map[string]string{"env": "prod", "region": "us"}})
	_ = r.Register(Metadata{ClientLabels: map[string]string{"env": "staging"}})

	ids := r.IterByLabel(map[string]string{"env": "prod"})
	require.Len(t, ids, 1)
	assert.Equal(t, a.ID(), ids[0])
}

func TestEvictionOrderIsOldestFirst(t *testing.T) {
	r := New()
	defer r.Shutdown()

	first := r.Register(Metadata{})
	time.Sleep(2 * time.Millisecond)
	second := r.Register(Metadata{})

	order := r.EvictionOrder()
	require.Len(t, order, 2)
	assert.Equal(t, first.ID(), order[0])
	assert.Equal(t, second.ID(), order[1])
}

func TestSubscribeUnsubscribeClosesChannel(t *testing.T) {
	r := New()
	defer r.Shutdown()

	ch, unsub := r.Subscribe(1)
	unsub()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestSlowSubscriberNeverBlocksPublish(t *testing.T) {
	r := New()
	defer r.Shutdown()

	_, unsub := r.Subscribe(1) // unbuffered beyond 1, never drained
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			r.Register(Metadata{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
