package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/transport"
)

func frame(priority Priority) *OutboundFrame {
	return &OutboundFrame{Payload: &transport.Payload{Type: "X"}, Priority: priority}
}

func TestPopDrainsInPriorityOrder(t *testing.T) {
	q := NewOutboundQueue(10)
	q.Push(frame(PriorityAck))
	q.Push(frame(PriorityControl))
	q.Push(frame(PriorityPush))
	q.Push(frame(PriorityResponse))

	var order []Priority
	for f := q.Pop(); f != nil; f = q.Pop() {
		order = append(order, f.Priority)
	}
	assert.Equal(t, []Priority{PriorityControl, PriorityResponse, PriorityPush, PriorityAck}, order)
}

func TestFIFOWithinSameTier(t *testing.T) {
	q := NewOutboundQueue(10)
	f1 := frame(PriorityPush)
	f2 := frame(PriorityPush)
	f3 := frame(PriorityPush)
	q.Push(f1)
	q.Push(f2)
	q.Push(f3)

	assert.Same(t, f1, q.Pop())
	assert.Same(t, f2, q.Pop())
	assert.Same(t, f3, q.Pop())
}

func TestPopOnEmptyQueueReturnsNil(t *testing.T) {
	q := NewOutboundQueue(4)
	assert.Nil(t, q.Pop())
}

func TestPushAtCapacityEvictsWorstPriority(t *testing.T) {
	q := NewOutboundQueue(2)
	accepted, evicted := q.Push(frame(PriorityAck))
	require.True(t, accepted)
	require.Nil(t, evicted)

	accepted, evicted = q.Push(frame(PriorityPush))
	require.True(t, accepted)
	require.Nil(t, evicted)

	// Queue full of Ack+Push; a Control frame must evict the worst (Ack).
	accepted, evicted = q.Push(frame(PriorityControl))
	require.True(t, accepted)
	require.NotNil(t, evicted)
	assert.Equal(t, PriorityAck, evicted.Priority)
	assert.Equal(t, 2, q.Len())
}

func TestPushAtCapacityRejectsWorseThanCurrentWorst(t *testing.T) {
	q := NewOutboundQueue(1)
	q.Push(frame(PriorityControl))

	accepted, evicted := q.Push(frame(PriorityAck))
	assert.False(t, accepted)
	assert.Nil(t, evicted)
	assert.Equal(t, 1, q.Len())
}

func TestLenTracksQueueSize(t *testing.T) {
	q := NewOutboundQueue(4)
	assert.Equal(t, 0, q.Len())
	q.Push(frame(PriorityPush))
	assert.Equal(t, 1, q.Len())
	q.Pop()
	assert.Equal(t, 0, q.Len())
}
