package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/subscription"
	"github.com/batata-io/batata/internal/store"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/transport"
)

func dial(t *testing.T, srv *httptest.Server, path string) *gorillaws.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := gorillaws.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func TestServeNamingDeliversImmediateSnapshot(t *testing.T) {
	dispatcher := push.NewDispatcher(0, time.Second, 3, time.Millisecond, 5*time.Millisecond, telemetry.Noop(), nil)
	index := subscription.New(dispatcher, time.Millisecond, 10*time.Millisecond)
	registry := naming.NewRegistry()

	key := transport.ServiceKey{Namespace: "ns", Group: "DEFAULT_GROUP", Service: "orders"}
	registry.Register(key, transport.InstanceRegister, naming.Instance{IP: "10.0.0.1", Port: 8080, Healthy: true, Enabled: true})

	h := Handlers{Naming: registry, Index: index, Pusher: dispatcher, Logger: testLogger()}

	srv := httptest.NewServer(routeFor(h))
	defer srv.Close()

	conn := dial(t, srv, "/ws/naming?namespace=ns&group=DEFAULT_GROUP&service=orders")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), "orders")
	require.Contains(t, string(data), transport.TypeNotifySubscriber)
}

func TestServeConfigDeliversChangeAfterPublish(t *testing.T) {
	dispatcher := push.NewDispatcher(0, time.Second, 3, time.Millisecond, 5*time.Millisecond, telemetry.Noop(), nil)
	mem := store.NewMemory(5)
	engine := configengine.New(mem, 50*time.Millisecond, "node-1", dispatcher, telemetry.Noop(), nil)

	key := transport.ConfigKey{Namespace: "ns", Group: "DEFAULT_GROUP", DataID: "app.yaml"}
	_, err := engine.Publish(key, "a: 1", "yaml", nil, nil)
	require.NoError(t, err)

	h := Handlers{Engine: engine, Pusher: dispatcher, Logger: testLogger()}
	srv := httptest.NewServer(routeFor(h))
	defer srv.Close()

	conn := dial(t, srv, "/ws/config?namespace=ns&group=DEFAULT_GROUP&data_id=app.yaml")
	defer conn.Close()

	// give ServeConfig time to register its retained listen before publishing again
	time.Sleep(20 * time.Millisecond)
	_, err = engine.Publish(key, "a: 2", "yaml", nil, nil)
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(data), transport.TypeConfigChangeNotify)
}
