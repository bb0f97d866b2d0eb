package subscription

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/transport"
)

type recordingSink struct {
	mu sync.Mutex
	deliveries []delivery
}

type delivery struct {
	connID string
	subjectKey string
	revision uint64
}

func (s *recordingSink) Deliver(connID, subjectKey string, revision uint64, payload *transport.Payload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery{connID: connID, subjectKey: subjectKey, revision: revision})
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.deliveries)
}

func (s *recordingSink) last() delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliveries[len(s.deliveries)-1]
}

func TestSubscribeIsIdempotentPerConnAndSubject(t *testing.T) {
	idx := New(&recordingSink{}, time.Millisecond, 10*time.Millisecond)
	subj := Subject{Kind: KindService, Key: "svc-a"}

	sub1 := idx.Subscribe("conn-1", subj, nil)
	sub2 := idx.Subscribe("conn-1", subj, nil)
	assert.Same(t, sub1, sub2)
	assert.Equal(t, []string{"conn-1"}, idx.Subscribers(subj))
}

func TestNotifyCoalescesBurstIntoOneDelivery(t *testing.T) {
	sink := &recordingSink{}
	idx := New(sink, 20*time.Millisecond, 200*time.Millisecond)
	subj := Subject{Kind: KindConfig, Key: "cfg-a"}

	idx.Subscribe("conn-1", subj, func() (*transport.Payload, uint64, bool) {
		return &transport.Payload{}, 5, true
	})

	idx.Notify(subj, 1)
	idx.Notify(subj, 2)
	idx.Notify(subj, 3)

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, uint64(5), sink.last().revision)
}

func TestNotifyHardCapsAtMaxCoalesce(t *testing.T) {
	sink := &recordingSink{}
	idx := New(sink, 50*time.Millisecond, 30*time.Millisecond)
	subj := Subject{Kind: KindService, Key: "svc-b"}

	idx.Subscribe("conn-1", subj, func() (*transport.Payload, uint64, bool) {
		return &transport.Payload{}, 1, true
	})

	start := time.Now()
	idx.Notify(subj, 1)
	// Keep re-notifying inside the coalesce window so it would never flush
	// on its own; the hard cap must still fire by maxCoalesce.
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; i < 5; i++ {
		<-ticker.C
		idx.Notify(subj, 1)
	}

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, time.Millisecond)
	assert.True(t, time.Since(start) < time.Second)
}

func TestRenderFalseSkipsDelivery(t *testing.T) {
	sink := &recordingSink{}
	idx := New(sink, time.Millisecond, 10*time.Millisecond)
	subj := Subject{Kind: KindService, Key: "svc-c"}

	idx.Subscribe("conn-1", subj, func() (*transport.Payload, uint64, bool) {
		return nil, 0, false
	})
	idx.Notify(subj, 1)

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestStaleRevisionIsNotRedelivered(t *testing.T) {
	sink := &recordingSink{}
	idx := New(sink, time.Millisecond, 10*time.Millisecond)
	subj := Subject{Kind: KindService, Key: "svc-d"}

	idx.Subscribe("conn-1", subj, func() (*transport.Payload, uint64, bool) {
		return &transport.Payload{}, 3, true
	})
	idx.Ack("conn-1", subj, 3)

	idx.Notify(subj, 3)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}

func TestUnsubscribeConnRemovesAllSubjects(t *testing.T) {
	idx := New(&recordingSink{}, time.Millisecond, 10*time.Millisecond)
	svc := Subject{Kind: KindService, Key: "svc-e"}
	cfg := Subject{Kind: KindConfig, Key: "cfg-e"}

	idx.Subscribe("conn-1", svc, nil)
	idx.Subscribe("conn-1", cfg, nil)
	idx.UnsubscribeConn("conn-1")

	assert.Empty(t, idx.Subscribers(svc))
	assert.Empty(t, idx.Subscribers(cfg))
}

func TestConcurrentFlushAndAckLeaveMonotonicWatermark(t *testing.T) {
	sink := &recordingSink{}
	idx := New(sink, time.Millisecond, time.Millisecond)
	subj := Subject{Kind: KindService, Key: "svc-f"}

	idx.Subscribe("conn-1", subj, func() (*transport.Payload, uint64, bool) {
		return &transport.Payload{}, 5, true
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			idx.Notify(subj, 5)
		}()
		go func() {
			defer wg.Done()
			idx.Ack("conn-1", subj, 5)
		}()
	}
	wg.Wait()
	time.Sleep(20 * time.Millisecond)

	idx.mu.Lock()
	rev := idx.bySubject[subj]["conn-1"].LastDeliveredRevision
	idx.mu.Unlock()
	assert.Equal(t, uint64(5), rev)
}

func TestSubjectEncodeDistinguishesKinds(t *testing.T) {
	svc := Subject{Kind: KindService, Key: "x"}
	cfg := Subject{Kind: KindConfig, Key: "x"}
	fuzzy := Subject{Kind: KindFuzzy, Key: "x"}
	assert.NotEqual(t, svc.Encode(), cfg.Encode())
	assert.NotEqual(t, cfg.Encode(), fuzzy.Encode())
}
