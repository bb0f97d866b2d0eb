// Package ws hosts the legacy WebSocket compatibility surface: naming
// NotifySubscriber and config ConfigChangeNotify pushes mirrored to plain
// WS clients as JSON frames, the same role the teacher's
// internal/handler/ws plays for its own delivery events — upgrade, attach
// to the push path, pump until the socket closes.
package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/stream"
	"github.com/batata-io/batata/internal/domain/subscription"
	"github.com/batata-io/batata/internal/transport"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true }, // legacy clients have no CSRF story; read-only surface
}

// wsSender adapts a *websocket.Conn to push.Sender, the narrow interface
// the Push Dispatcher needs to enqueue a frame. Writes are serialized
// through one pump goroutine, the same single-writer discipline
// stream.Multiplexer enforces for the gRPC Sender.
type wsSender struct {
	conn *websocket.Conn

	mu      sync.Mutex
	frames  chan *transport.Payload
	closed  bool
	onFired func(transport.Payload) // re-arm hook, set by ServeConfig for the long-listen protocol
}

func newWSSender(conn *websocket.Conn) *wsSender {
	s := &wsSender{conn: conn, frames: make(chan *transport.Payload, 64)}
	go s.pump()
	return s
}

func (s *wsSender) pump() {
	for p := range s.frames {
		data, err := json.Marshal(p)
		if err != nil {
			continue
		}
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Enqueue implements push.Sender. Priority has no meaning on this
// best-effort surface — a legacy WS client has no in-flight budget to
// protect.
func (s *wsSender) Enqueue(p *transport.Payload, _ stream.Priority) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.frames <- p:
		if s.onFired != nil && p.Type == transport.TypeConfigChangeNotify {
			go s.onFired(*p)
		}
		return true
	default:
		return false
	}
}

func (s *wsSender) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.frames)
}

// Handlers bundles the collaborators the legacy WS surface mirrors
// server-initiated pushes from.
type Handlers struct {
	Naming naming.Registrar
	Index  *subscription.Index
	Engine *configengine.Engine
	Pusher *push.Dispatcher
	Logger *slog.Logger
}

func newConnID() string { return "ws-" + uuid.New().String() }

// ServeNaming upgrades the request and mirrors NotifySubscriber pushes
// for one ServiceKey, query-parameterized the way the teacher's /lp and
// /ws handlers take their identity from the URL rather than a typed
// request body.
func (h Handlers) ServeNaming(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := transport.ServiceKey{Namespace: q.Get("namespace"), Group: q.Get("group"), Service: q.Get("service")}
	if key.Service == "" {
		http.Error(w, "service is required", http.StatusBadRequest)
		return
	}
	healthyOnly := q.Get("healthy_only") != "false"
	var clusters []string
	if c := q.Get("clusters"); c != "" {
		clusters = strings.Split(c, ",")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := newConnID()
	sender := newWSSender(conn)
	defer sender.close()
	h.Pusher.Attach(connID, sender)
	defer h.Pusher.Detach(connID)

	subject := subscription.Subject{Kind: subscription.KindService, Key: naming.EncodeServiceKey(key)}
	render := func() (*transport.Payload, uint64, bool) {
		instances, rev := h.Naming.Query(key, clusters, healthyOnly)
		payload, err := transport.Encode(transport.TypeNotifySubscriber, transport.NotifySubscriber{
			ServiceKey: key, Instances: instances, Revision: rev,
		})
		if err != nil {
			return nil, 0, false
		}
		return payload, rev, true
	}
	h.Index.Subscribe(connID, subject, render)
	defer h.Index.Unsubscribe(connID, subject)

	if payload, rev, ok := render(); ok {
		h.Index.Ack(connID, subject, rev)
		h.Pusher.Deliver(connID, subject.Encode(), rev, payload)
	}

	h.pumpUntilClosed(conn)
}

// ServeConfig upgrades the request and mirrors ConfigChangeNotify pushes
// for one ConfigKey via the Config Change Engine's retained long-listen
// mechanism, re-arming the listen after every fire so the WS client keeps
// receiving subsequent changes for the life of the socket.
func (h Handlers) ServeConfig(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := transport.ConfigKey{Namespace: q.Get("namespace"), Group: q.Get("group"), DataID: q.Get("data_id")}
	if key.DataID == "" {
		http.Error(w, "data_id is required", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Error("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	connID := newConnID()
	sender := newWSSender(conn)
	defer sender.close()
	h.Pusher.Attach(connID, sender)
	defer h.Pusher.Detach(connID)
	defer h.Engine.CancelConn(connID)

	rearm := func(item transport.ConfigListenItem) {
		h.Engine.BatchListen(connID, []transport.ConfigListenItem{item})
	}
	sender.mu.Lock()
	sender.onFired = func(transport.Payload) {
		_, md5, _, _, err := h.Engine.Query(key, configengine.Subscriber{ConnID: connID})
		if err != nil {
			return
		}
		rearm(transport.ConfigListenItem{ConfigKey: key, MD5: md5})
	}
	sender.mu.Unlock()

	_, md5, _, _, err := h.Engine.Query(key, configengine.Subscriber{ConnID: connID})
	if err != nil {
		h.Logger.Warn("ws config query failed", "key", key, "error", err)
	}
	rearm(transport.ConfigListenItem{ConfigKey: key, MD5: md5})

	h.pumpUntilClosed(conn)
}

// pumpUntilClosed blocks reading (and discarding) frames from the client
// until the socket errors or closes, the same read-loop-as-liveness-probe
// idiom the teacher's WS pump uses.
func (h Handlers) pumpUntilClosed(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
