package grpc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/stream"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/transport"
)

// fakeRegistrar is a minimal connection.Registrar double that only
// records MarkUnhealthy calls, enough to observe Probe's failure path
// without a real janitor goroutine.
type fakeRegistrar struct {
	connection.Registrar
	mu          sync.Mutex
	unhealthy   []connection.ID
}

func (f *fakeRegistrar) MarkUnhealthy(id connection.ID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unhealthy = append(f.unhealthy, id)
}

func (f *fakeRegistrar) wasMarkedUnhealthy(id connection.ID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.unhealthy {
		if u == id {
			return true
		}
	}
	return false
}

// silentSender accepts every frame and never replies, so a probe against
// it always times out.
type silentSender struct{}

func (silentSender) Send(p *transport.Payload) error { return nil }

func TestHandleUnaryServerCheck(t *testing.T) {
	s := &Server{}
	in := &transport.Payload{Type: transport.TypeServerCheckRequest}
	resp, err := s.handleUnary(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, transport.TypeServerCheckResponse, resp.Type)
}

func TestHandleUnaryHealthCheck(t *testing.T) {
	s := &Server{}
	in := &transport.Payload{Type: transport.TypeHealthCheckRequest}
	resp, err := s.handleUnary(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, transport.TypeHealthCheckResponse, resp.Type)
}

func TestHandleUnaryUnsupportedTypeReturnsErrorPayload(t *testing.T) {
	s := &Server{}
	in := &transport.Payload{Type: "NoSuchRequest"}
	resp, err := s.handleUnary(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, transport.TypeErrorResponse, resp.Type)
}

func TestProbeMarksUnhealthyWhenUnanswered(t *testing.T) {
	id := connection.ID(uuid.New())
	mux := stream.New(id, silentSender{}, stream.Options{RequestTimeout: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go mux.Run(ctx)

	reg := &fakeRegistrar{}
	s := &Server{
		conn:     reg,
		sessions: map[string]*stream.Multiplexer{id.String(): mux},
	}

	s.Probe(id)

	require.Eventually(t, func() bool { return reg.wasMarkedUnhealthy(id) }, time.Second, time.Millisecond)
}

func TestProbeIgnoresUnknownConnection(t *testing.T) {
	reg := &fakeRegistrar{}
	s := &Server{conn: reg, sessions: map[string]*stream.Multiplexer{}}
	s.Probe(connection.ID(uuid.New())) // no session registered, must not panic
}

func TestAttachDetachTrackSessionsAndPusher(t *testing.T) {
	pusher := push.NewDispatcher(0, time.Second, 0, time.Millisecond, time.Second, telemetry.Noop(), nil)
	s := &Server{
		pusher:   pusher,
		sessions: map[string]*stream.Multiplexer{},
	}

	id := connection.ID(uuid.New())
	mux := stream.New(id, silentSender{}, stream.Options{})

	s.attach(id, mux)
	s.sessionsMu.RLock()
	_, ok := s.sessions[id.String()]
	s.sessionsMu.RUnlock()
	assert.True(t, ok)

	s.detach(id)
	s.sessionsMu.RLock()
	_, ok = s.sessions[id.String()]
	s.sessionsMu.RUnlock()
	assert.False(t, ok)
}

func TestPrincipalForEmptyTokenIsNil(t *testing.T) {
	p := &transport.Payload{}
	assert.Nil(t, principalFor(p))
}

func TestPrincipalForNonEmptyTokenIsAllowAll(t *testing.T) {
	p := &transport.Payload{}
	p.Set(transport.MetaAccessToken, "some-token")
	principal := principalFor(p)
	require.NotNil(t, principal)
	assert.Equal(t, "some-token", principal.Subject)
	require.Len(t, principal.Policies, 1)
	assert.Equal(t, "*", principal.Policies[0].NamespacePattern)
}
