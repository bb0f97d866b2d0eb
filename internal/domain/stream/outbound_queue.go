package stream

import "container/heap"

// outboundHeap orders queued frames by (Priority asc, seq asc) so lower
// tiers always drain first and frames within a tier stay FIFO.
type outboundHeap []*OutboundFrame

func (h outboundHeap) Len() int { return len(h) }
func (h outboundHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority < h[j].Priority
	}
	return h[i].seq < h[j].seq
}
func (h outboundHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *outboundHeap) Push(x any) {
	*h = append(*h, x.(*OutboundFrame))
}

func (h *outboundHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// OutboundQueue is the bounded, priority-tiered buffer a connection's
// single writer goroutine drains.
type OutboundQueue struct {
	h outboundHeap
	capacity int
	nextSeq uint64
}

func NewOutboundQueue(capacity int) *OutboundQueue {
	q := &OutboundQueue{capacity: capacity}
	heap.Init(&q.h)
	return q
}

func (q *OutboundQueue) Len() int { return q.h.Len() }

// Push enqueues a frame. When at capacity it evicts the lowest-priority
// (highest tier number) frame already queued to make room, mirroring the
// teacher's handleBackpressure eviction of lower-priority events. A frame
// is evicted only for an incoming frame of a strictly higher tier, so
// Control frames are never evicted and a Response frame only ever makes
// room for a Control frame.
func (q *OutboundQueue) Push(f *OutboundFrame) (accepted bool, evicted *OutboundFrame) {
	f.seq = q.nextSeq
	q.nextSeq++

	if q.h.Len() < q.capacity {
		heap.Push(&q.h, f)
		return true, nil
	}

	worstIdx := q.worstIndex()
	if worstIdx < 0 || q.h[worstIdx].Priority <= f.Priority {
		return false, nil
	}
	evicted = q.h[worstIdx]
	heap.Remove(&q.h, worstIdx)
	heap.Push(&q.h, f)
	return true, evicted
}

func (q *OutboundQueue) worstIndex() int {
	worst := -1
	for i, fr := range q.h {
		if worst < 0 || fr.Priority > q.h[worst].Priority {
			worst = i
		}
	}
	return worst
}

// Pop removes and returns the highest-priority queued frame, or nil if
// empty.
func (q *OutboundQueue) Pop() *OutboundFrame {
	if q.h.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*OutboundFrame)
}
