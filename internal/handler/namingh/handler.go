// Package namingh wires the Naming category of request types: instance register/deregister (single + batch + persistent),
// service list/query, subscribe, and fuzzy watch. Mirrors configh's
// Bind-per-tag shape and its fuzzyTracker pattern for per-connection
// teardown bookkeeping.
package namingh

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"

	"github.com/batata-io/batata/infra/transport/subset"
	"github.com/batata-io/batata/internal/domain/consensus"
	"github.com/batata-io/batata/internal/domain/dispatch"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/domain/push"
	"github.com/batata-io/batata/internal/domain/subscription"
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

// watchTracker remembers each connection's live fuzzy-watch
// subscriptions so connection close can unwind them, the same role
// configh's fuzzyTracker plays for config fuzzy watches.
type watchTracker struct {
	mu sync.Mutex
	byConn map[string][]func()
}

func newWatchTracker() *watchTracker { return &watchTracker{byConn: make(map[string][]func())} }

func (t *watchTracker) add(connID string, unsub func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byConn[connID] = append(t.byConn[connID], unsub)
}

func (t *watchTracker) cancel(connID string) {
	t.mu.Lock()
	unsubs := t.byConn[connID]
	delete(t.byConn, connID)
	t.mu.Unlock()
	for _, fn := range unsubs {
		fn()
	}
}

// Handlers bundles namingh's dependencies.
type Handlers struct {
	Registry naming.Registrar
	Index *subscription.Index
	Pusher *push.Dispatcher
	Bridge *consensus.Bridge
	Logger *slog.Logger
	Watch *watchTracker

	// MaxPushInstances caps how many instances a query/subscribe response
	// carries for a service whose membership exceeds it: instead of
	// broadcasting every instance to every caller, each connection gets a
	// stable subset picked by consistent hashing on its connection id, the
	// same "bounded fan-out per watcher" tradeoff Nacos's push service
	// makes for oversized clusters. 0 disables subsetting.
	MaxPushInstances int
}

// NewHandlers wires the shared watchTracker and returns both the handler
// specs and the tracker, so module.go can wire its cancel into the
// connection-close event stream.
func NewHandlers(reg naming.Registrar, idx *subscription.Index, pusher *push.Dispatcher, bridge *consensus.Bridge, logger *slog.Logger, maxPushInstances int) (Handlers, *watchTracker) {
	t := newWatchTracker()
	return Handlers{Registry: reg, Index: idx, Pusher: pusher, Bridge: bridge, Logger: logger, Watch: t, MaxPushInstances: maxPushInstances}, t
}

// subsetInstances caps instances to maxN by picking a connection-stable
// subset via consistent hashing on instanceKey, rather than an arbitrary
// truncation that would reshuffle on every call.
func subsetInstances(connID string, instances []transport.InstanceDTO, maxN int) []transport.InstanceDTO {
	if maxN <= 0 || len(instances) <= maxN {
		return instances
	}
	keys := make([]string, len(instances))
	byKey := make(map[string]transport.InstanceDTO, len(instances))
	for i, inst := range instances {
		k := instanceKey(inst)
		keys[i] = k
		byKey[k] = inst
	}
	picked := subset.Subset(connID, keys, maxN)
	out := make([]transport.InstanceDTO, 0, len(picked))
	for _, k := range picked {
		out = append(out, byKey[k])
	}
	return out
}

func instanceKey(inst transport.InstanceDTO) string {
	return inst.IP + ":" + strconv.Itoa(int(inst.Port))
}

func resource(ns, group, svc string, action dispatch.Action) dispatch.Resource {
	return dispatch.Resource{Namespace: ns, Group: group, ResourceType: "service", ResourceName: svc, Action: action}
}

func toInstance(dto transport.InstanceDTO, connID string) naming.Instance {
	return naming.Instance{
		IP: dto.IP, Port: dto.Port, Weight: dto.Weight, Healthy: dto.Healthy,
		Enabled: dto.Enabled, Ephemeral: dto.Ephemeral, Cluster: dto.Cluster,
		Metadata: dto.Metadata, ConnID: connID,
	}
}

// renderServiceView builds the RenderFunc a SubscribeServiceRequest
// installs: the authoritative filtered snapshot, never a delta.
func renderServiceView(reg naming.Registrar, key transport.ServiceKey, clusters []string, healthyOnly bool, connID string, maxPushInstances int) subscription.RenderFunc {
	return func() (*transport.Payload, uint64, bool) {
		instances, rev := reg.Query(key, clusters, healthyOnly)
		instances = subsetInstances(connID, instances, maxPushInstances)
		payload, err := transport.Encode(transport.TypeNotifySubscriber, transport.NotifySubscriber{
			ServiceKey: key, Instances: instances, Revision: rev,
		})
		if err != nil {
			return nil, 0, false
		}
		return payload, rev, true
	}
}

// New builds every Naming-category HandlerSpec.
func New(h Handlers) []dispatch.HandlerSpec {
	return []dispatch.HandlerSpec{
		{
			Tag: transport.TypeInstanceRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.InstanceRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.InstanceRequest) (any, error) {
					inst := toInstance(body.Instance, req.Conn.ID().String())
					rev := h.Registry.Register(body.ServiceKey, body.Op, inst)
					return transport.InstanceResponse{Revision: rev}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return resource("", "", "", dispatch.ActionWrite)
			},
		},
		{
			Tag: transport.TypeBatchInstanceRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.BatchInstanceRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.BatchInstanceRequest) (any, error) {
					rev, err := h.Registry.BatchRegister(body.ServiceKey, body.Op, body.Instances)
					if err != nil {
						return nil, err
					}
					return transport.BatchInstanceResponse{Revision: rev}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return resource("", "", "", dispatch.ActionWrite)
			},
		},
		{
			// PersistentInstanceRequest always replicates through the
			// Consensus Bridge before the registry observes it; the apply path re-enters
			// Registry.Register with from_replication semantics, wired in
			// internal/wiring/replicate.go.
			Tag: transport.TypePersistentInstanceRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.PersistentInstanceRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.PersistentInstanceRequest) (any, error) {
					entry := consensus.ServiceInstanceWrite{
						Namespace: body.Namespace, Group: body.Group, Service: body.Service,
						Op: int8(body.Op),
						IP: body.Instance.IP, Port: body.Instance.Port, Weight: body.Instance.Weight,
						Healthy: body.Instance.Healthy, Enabled: body.Instance.Enabled,
						Cluster: body.Instance.Cluster, Metadata: body.Instance.Metadata,
					}
					result, err := h.Bridge.Propose(ctx, entry.Encode())
					if err != nil {
						return nil, err
					}
					rev, _ := result.Value.(uint64)
					return transport.InstanceResponse{Revision: rev}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return resource("", "", "", dispatch.ActionWrite)
			},
		},
		{
			Tag: transport.TypeServiceListRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ServiceListRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ServiceListRequest) (any, error) {
					items, total, hasMore := h.Registry.List(body.Namespace, body.Group, body.Pattern, body.Offset, body.PageSize)
					return transport.ServiceListResponse{Total: total, Offset: body.Offset, Items: items, HasMore: hasMore}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return resource("", "", "", dispatch.ActionRead)
			},
		},
		{
			Tag: transport.TypeServiceQueryRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.ServiceQueryRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.ServiceQueryRequest) (any, error) {
					instances, rev := h.Registry.Query(body.ServiceKey, body.Clusters, body.HealthyOnly)
					instances = subsetInstances(req.Conn.ID().String(), instances, h.MaxPushInstances)
					return transport.ServiceQueryResponse{Instances: instances, Revision: rev}, nil
				}),
			Resource: func(req dispatch.Request) dispatch.Resource {
				return resource("", "", "", dispatch.ActionRead)
			},
		},
		{
			Tag: transport.TypeSubscribeServiceRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.SubscribeServiceRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.SubscribeServiceRequest) (any, error) {
					connID := req.Conn.ID().String()
					subject := subscription.Subject{Kind: subscription.KindService, Key: namingSubjectKey(body.ServiceKey)}
					if !body.Subscribe {
						h.Index.Unsubscribe(connID, subject)
						return transport.SubscribeServiceResponse{Acknowledged: true}, nil
					}
					render := renderServiceView(h.Registry, body.ServiceKey, body.Clusters, body.HealthyOnly, connID, h.MaxPushInstances)
					h.Index.Subscribe(connID, subject, render)
					// Deliver the current snapshot immediately so a fresh
					// subscriber doesn't wait for the next state change.
					if payload, rev, ok := render(); ok {
						h.Index.Ack(connID, subject, rev)
						h.Pusher.Deliver(connID, subject.Encode(), rev, payload)
					}
					return transport.SubscribeServiceResponse{Acknowledged: true}, nil
				}),
		},
		{
			Tag: transport.TypeNamingFuzzyWatchRequest,
			Handle: dispatch.Bind(h.Logger, decodeJSON[transport.NamingFuzzyWatchRequest],
				func(ctx context.Context, req dispatch.Request, body *transport.NamingFuzzyWatchRequest) (any, error) {
					matching := h.Registry.FuzzyWatch(body.Namespace, body.Pattern, body.Subscribe)
					if body.Subscribe {
						connID := req.Conn.ID().String()
						ch, unsub := h.Registry.SubscribeFuzzy(body.Namespace, body.Pattern)
						h.Watch.add(connID, unsub)
						subjectKey := "namingfuzzy:" + body.Namespace + "|" + body.Pattern
						go func() {
							for sync := range ch {
								payload, err := transport.Encode(transport.TypeNamingFuzzyWatchSync, sync)
								if err != nil {
									continue
								}
								h.Pusher.Deliver(connID, subjectKey, sync.Revision, payload)
							}
						}()
					}
					return transport.NamingFuzzyWatchSync{Namespace: body.Namespace, Pattern: body.Pattern, Matching: matching}, nil
				}),
		},
	}
}

// namingSubjectKey renders a ServiceKey as the Subscription Index's
// opaque subject key, mirroring naming.EncodeServiceKey without importing
// naming's module.go (which would create an import cycle back into
// this handler package).
func namingSubjectKey(key transport.ServiceKey) string {
	return key.Namespace + "|" + key.Group + "|" + key.Service
}
