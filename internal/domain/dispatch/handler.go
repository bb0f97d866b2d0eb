// Package dispatch implements the Handler Dispatch component: it
// generalizes the teacher's AMQP Bind[T] wrapper
// (internal/handler/amqp/bind.go) from "decode one message type, run one
// domain function, fan out the result" into "decode one typed RPC
// request, authorize it, rate-limit it, run the domain function, and
// turn its error into the wire's apperr taxonomy".
package dispatch

import (
	"context"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/transport"
)

// Request carries everything a handler needs about the inbound frame and
// the connection it arrived on.
type Request struct {
	Conn *connection.Connection
	Payload *transport.Payload
	Auth *Principal
}

// DomainHandler is the typed business-logic signature a component
// registers, mirroring the teacher's DomainHandler[T] shape.
type DomainHandler[T any] func(ctx context.Context, req Request, body *T) (any, error)

// RawHandler is the type-erased form stored in the Registry so handlers
// of different T can live in one dispatch table.
type RawHandler func(ctx context.Context, req Request) (any, error)

// HandlerSpec binds one request type tag to its handler and policy.
type HandlerSpec struct {
	Tag string
	AllowAnonymous bool
	Resource func(req Request) Resource // nil if the handler needs no authorization check
	Handle RawHandler
}

// Bind adapts a typed DomainHandler into a RawHandler, decoding req.Payload.Body
// into *T via the type registry before calling fn. Errors from fn are
// classified through apperr.Classify so nothing escapes untyped.
func Bind[T any](logger *slog.Logger, decode func([]byte) (*T, error), fn DomainHandler[T]) RawHandler {
	return func(ctx context.Context, req Request) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panic recovered",
					"err", r, "stack", string(debug.Stack()),
					"type", req.Payload.Type)
				err = apperr.New(apperr.KindInternal, "internal error")
			}
		}()

		body, decErr := decode(req.Payload.Body)
		if decErr != nil {
			return nil, apperr.Wrap(apperr.KindProtocol, "decode failed", decErr)
		}

		resp, err = fn(ctx, req, body)
		if err != nil {
			return nil, apperr.Classify(err)
		}
		return resp, nil
	}
}

// Registry holds every bound HandlerSpec keyed by request type tag, the
// dispatch-time counterpart of internal/transport.TypeRegistry.
type Registry struct {
	specs map[string]HandlerSpec
}

func NewRegistry(specs ...HandlerSpec) *Registry {
	m := make(map[string]HandlerSpec, len(specs))
	for _, s := range specs {
		m[s.Tag] = s
	}
	return &Registry{specs: m}
}

func (r *Registry) Lookup(tag string) (HandlerSpec, bool) {
	s, ok := r.specs[tag]
	return s, ok
}

// Dispatcher ties the Registry, authorization, per-connection/per-handler
// rate limiting, and metrics together.
type Dispatcher struct {
	registry *Registry
	authz Authorizer
	limiters *LimiterSet
	metrics *telemetry.Metrics
	logger *slog.Logger
}

func NewDispatcher(registry *Registry, authz Authorizer, limiters *LimiterSet, metrics *telemetry.Metrics, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{registry: registry, authz: authz, limiters: limiters, metrics: metrics, logger: logger}
}

// Dispatch runs the full pipeline for one inbound request frame:
// allowlist/authorization check, rate limiting, handler invocation.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	spec, ok := d.registry.Lookup(req.Payload.Type)
	if !ok {
		return nil, apperr.New(apperr.KindProtocol, "unknown request type: "+req.Payload.Type)
	}

	if !spec.AllowAnonymous && req.Auth == nil {
		return nil, apperr.New(apperr.KindAuthentication, "authentication required")
	}
	if spec.Resource != nil && req.Auth != nil {
		res := spec.Resource(req)
		if !d.authz.Allow(req.Auth, res) {
			return nil, apperr.New(apperr.KindAuthorization, "not authorized for "+res.String())
		}
	}

	if !d.limiters.AllowConnection(req.Conn.ID()) {
		d.metrics.RateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "connection")))
		return nil, apperr.New(apperr.KindResource, "rate limit exceeded")
	}
	if !d.limiters.AllowHandler(spec.Tag) {
		d.metrics.RateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", "handler")))
		return nil, apperr.New(apperr.KindResource, "rate limit exceeded")
	}

	return spec.Handle(ctx, req)
}
