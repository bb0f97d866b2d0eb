package http

import (
	"fmt"
	"net"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/domain/consensus"
)

func freePort(t *testing.T) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())
	return addr
}

func newTestBridge(t *testing.T) *consensus.Bridge {
	t.Helper()
	bridge, err := consensus.New(consensus.Config{
		NodeID:       "node-1",
		DataDir:      t.TempDir(),
		BindAddr:     freePort(t),
		Bootstrap:    true,
		ApplyTimeout: time.Second,
	})
	require.NoError(t, err)
	require.Eventually(t, bridge.IsLeader, 5*time.Second, 10*time.Millisecond)
	return bridge
}

func TestHealthzAlwaysOK(t *testing.T) {
	bridge := newTestBridge(t)
	router := NewRouter(bridge)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}

func TestReadyzOKOnceLeaderElected(t *testing.T) {
	bridge := newTestBridge(t)
	router := NewRouter(bridge)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/readyz", nil)
	router.ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
}

func TestDebugMuxIsMounted(t *testing.T) {
	bridge := newTestBridge(t)
	router := NewRouter(bridge)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/debug/", nil)
	router.ServeHTTP(rec, req)

	require.NotEqual(t, 404, rec.Code, fmt.Sprintf("expected /debug/ to be routed, got %d", rec.Code))
}
