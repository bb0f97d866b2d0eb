// Package configh wires the Config category of request types: query, publish, remove, long-listen batch, fuzzy watch, and the
// client-reported config metric sink. Mirrors internalh's Bind-per-tag
// shape.
package configh

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/transport"
)

func decodeJSON[T any](body []byte) (*T, error) {
	v := new(T)
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

// fuzzyTracker remembers each connection's live ConfigFuzzyWatch
// subscriptions so connection close can unwind them.
type fuzzyTracker struct {
	mu sync.Mutex
	byConn map[string][]func()
}

func newFuzzyTracker() *fuzzyTracker { return &fuzzyTracker{byConn: make(map[string][]func())} }

func (t *fuzzyTracker) add(connID string, unsub func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byConn[connID] = append(t.byConn[connID], unsub)
}

func (t *fuzzyTracker) cancel(connID string) {
	t.mu.Lock()
	unsubs := t.byConn[connID]
	delete(t.byConn, connID)
	t.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

// Handlers bundles configh's dependencies.
type Handlers struct {
	Engine *configengine.Engine
	Pusher *push.Dispatcher
	Logger *slog.Logger
	Fuzzy *fuzzyTracker
}

// NewHandlers wires the shared fuzzyTracker and returns both the handler
// specs and the tracker, so module.go can wire the tracker's cancel into
// the connection-close event stream.
func NewHandlers(engine *configengine.Engine, pusher *push.Dispatcher, logger *slog.Logger) (Handlers, *fuzzyTracker) {
	t := newFuzzyTracker()
	return Handlers{Engine: engine, Pusher: pusher, Logger: logger, Fuzzy: t}, t
}

func resource(ns, group, dataID string, action dispatch.Action) dispatch.Resource {
	return dispatch.Resource{Namespace: ns, Group: group, ResourceType: "config", ResourceName: dataID, Action: action}
}

// New builds every Config-category HandlerSpec.
func New(h Handlers) []dispatch.HandlerSpec {
	return []dispatch.HandlerSpec{
		{
			Tag: transport.TypeConfigQueryRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ConfigQueryRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ConfigQueryRequest) (any, error) {
					sub := configengine.Subscriber{ConnID: req.Conn.ID().String(), PeerIP: req.Conn.Metadata().PeerAddr, Labels: req.Conn.Metadata().ClientLabels}
					content, md5, typ, rev, err := h.Engine.Query(body.ConfigKey, sub)
					if err != nil {
						return nil, err
					}
					return transport.ConfigQueryResponse{Content: content, MD5: md5, Type: typ, Revision: rev}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource { return resource("", "", "", dispatch.ActionRead) },
		},
		{
			Tag: transport.TypeConfigPublishRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ConfigPublishRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ConfigPublishRequest) (any, error) {
					rev, err := h.Engine.Publish(body.ConfigKey, body.Content, body.Type, body.Tags, body.GraySelector)
					if err != nil {
						return nil, err
					}
					return transport.ConfigPublishResponse{Revision: rev}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return dispatch.Resource{ResourceType: "config", Action: dispatch.ActionWrite}
			},
		},
		{
			Tag: transport.TypeConfigRemoveRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ConfigRemoveRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ConfigRemoveRequest) (any, error) {
					rev, err := h.Engine.Remove(body.ConfigKey)
					if err != nil {
						return nil, err
					}
					return transport.ConfigRemoveResponse{Revision: rev}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return dispatch.Resource{ResourceType: "config", Action: dispatch.ActionWrite}
			},
		},
		{
			Tag: transport.TypeConfigBatchListenRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ConfigBatchListenRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ConfigBatchListenRequest) (any, error) {
					changed := h.Engine.BatchListen(req.Conn.ID().String(), body.Items)
					return transport.ConfigBatchListenResponse{Changed: changed, GlobalRevision: h.Engine.GlobalRevision()}, nil
				}),
		},
		{
			Tag: transport.TypeConfigFuzzyWatchRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ConfigFuzzyWatchRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ConfigFuzzyWatchRequest) (any, error) {
					matching := h.Engine.FuzzyWatch(body.Namespace, body.Pattern)
					keys := make([]transport.ConfigKey, len(matching))
					for i, id := range matching {
						keys[i] = transport.ConfigKey{Namespace: body.Namespace, DataID: id}
					}
					if body.Subscribe {
						connID := req.Conn.ID().String()
						ch, unsub := h.Engine.SubscribeFuzzy(body.Namespace, body.Pattern)
						h.Fuzzy.add(connID, unsub)
						subjectKey := "cfgfuzzy:" + body.Namespace + "|" + body.Pattern
						go func() {
							for sync := range ch {
								payload, err := transport.Encode(transport.TypeConfigFuzzyWatchSync, sync)
								if err != nil {
									continue
								}
								h.Pusher.Deliver(connID, subjectKey, sync.Revision, payload)
							}
						}()
					}
					return transport.ConfigFuzzyWatchResponse{Matching: keys}, nil
				}),
		},
		{
			Tag: transport.TypeClientConfigMetricRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ClientConfigMetricRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ClientConfigMetricRequest) (any, error) {
					// Client-reported metrics are informational only;
					// nothing downstream currently consumes them beyond the log.
					h.Logger.Debug("client config metric", "conn", req.Conn.ID().String(), "metrics", body.Metrics)
					return nil, nil
				}),
			AllowAnonymous: false,
		},
	}
}
