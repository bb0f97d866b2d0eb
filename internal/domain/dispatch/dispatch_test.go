package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/domain/connection"
	"github.com/batata-io/batata/internal/telemetry"
	"github.com/batata-io/batata/internal/transport"
)

func testLogger() *slog.Logger { return slog.Default() }

func newTestConn() *connection.Connection {
	r := connection.New()
	defer r.Shutdown()
	return r.Register(connection.Metadata{})
}

type echoBody struct {
	Value string `json:"value"`
}

func decodeEcho(body []byte) (*echoBody, error) {
	v := new(echoBody)
	if len(body) > 0 {
		if err := json.Unmarshal(body, v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func TestBindDecodesAndInvokes(t *testing.T) {
	handle := Bind(testLogger(), decodeEcho, func(ctx context.Context, req Request, body *echoBody) (any, error) {
		return body.Value, nil
	})

	body, _ := json.Marshal(echoBody{Value: "hi"})
	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Echo", Body: body}}
	resp, err := handle(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "hi", resp)
}

func TestBindClassifiesDecodeError(t *testing.T) {
	handle := Bind(testLogger(), decodeEcho, func(ctx context.Context, req Request, body *echoBody) (any, error) {
		t.Fatal("handler must not run when decode fails")
		return nil, nil
	})

	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Echo", Body: []byte("not json")}}
	_, err := handle(context.Background(), req)
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindProtocol, appErr.Kind)
}

func TestBindClassifiesHandlerError(t *testing.T) {
	handle := Bind(testLogger(), decodeEcho, func(ctx context.Context, req Request, body *echoBody) (any, error) {
		return nil, apperr.New(apperr.KindValidation, "bad value")
	})

	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Echo", Body: []byte("{}")}}
	_, err := handle(context.Background(), req)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
}

func TestBindRecoversFromPanic(t *testing.T) {
	handle := Bind(testLogger(), decodeEcho, func(ctx context.Context, req Request, body *echoBody) (any, error) {
		panic("boom")
	})

	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Echo", Body: []byte("{}")}}
	_, err := handle(context.Background(), req)
	require.Error(t, err)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindInternal, appErr.Kind)
}

func TestPolicyAuthorizerAllowsMatchingPolicy(t *testing.T) {
	az := NewPolicyAuthorizer()
	p := &Principal{Policies: []Policy{
		{NamespacePattern: "prod*", GroupPattern: "*", TypePattern: "*", Actions: []Action{ActionRead}},
	}}
	res := Resource{Namespace: "prod-east", Group: "g", ResourceType: "config", ResourceName: "a", Action: ActionRead}
	assert.True(t, az.Allow(p, res))
}

func TestPolicyAuthorizerDeniesWrongAction(t *testing.T) {
	az := NewPolicyAuthorizer()
	p := &Principal{Policies: []Policy{
		{NamespacePattern: "*", GroupPattern: "*", TypePattern: "*", Actions: []Action{ActionRead}},
	}}
	res := Resource{Namespace: "ns", Group: "g", ResourceType: "config", ResourceName: "a", Action: ActionWrite}
	assert.False(t, az.Allow(p, res))
}

func TestPolicyAuthorizerDeniesNilPrincipal(t *testing.T) {
	az := NewPolicyAuthorizer()
	assert.False(t, az.Allow(nil, Resource{}))
}

func TestLimiterSetAllowsThenThrottles(t *testing.T) {
	l := NewLimiterSet(0, 1, 0, 1)
	id := connection.ID{}
	assert.True(t, l.AllowConnection(id))
	assert.False(t, l.AllowConnection(id))
}

func TestLimiterForgetConnectionResetsBucket(t *testing.T) {
	l := NewLimiterSet(0, 1, 0, 1)
	id := connection.ID{}
	require.True(t, l.AllowConnection(id))
	require.False(t, l.AllowConnection(id))
	l.ForgetConnection(id)
	assert.True(t, l.AllowConnection(id))
}

func TestDispatchUnknownTypeReturnsProtocolError(t *testing.T) {
	d := NewDispatcher(NewRegistry(), NewPolicyAuthorizer(), NewLimiterSet(100, 100, 100, 100), telemetry.Noop(), testLogger())
	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Unknown"}}
	_, err := d.Dispatch(context.Background(), req)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindProtocol, appErr.Kind)
}

func TestDispatchRequiresAuthWhenNotAnonymous(t *testing.T) {
	spec := HandlerSpec{
		Tag: "Secure",
		Handle: func(ctx context.Context, req Request) (any, error) { return "ok", nil },
	}
	d := NewDispatcher(NewRegistry(spec), NewPolicyAuthorizer(), NewLimiterSet(100, 100, 100, 100), telemetry.Noop(), testLogger())
	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Secure"}}
	_, err := d.Dispatch(context.Background(), req)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindAuthentication, appErr.Kind)
}

func TestDispatchAllowsAnonymousHandler(t *testing.T) {
	spec := HandlerSpec{
		Tag: "Open",
		AllowAnonymous: true,
		Handle: func(ctx context.Context, req Request) (any, error) { return "ok", nil },
	}
	d := NewDispatcher(NewRegistry(spec), NewPolicyAuthorizer(), NewLimiterSet(100, 100, 100, 100), telemetry.Noop(), testLogger())
	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Open"}}
	resp, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

func TestDispatchDeniesUnauthorizedResource(t *testing.T) {
	spec := HandlerSpec{
		Tag: "Write",
		AllowAnonymous: true,
		Resource: func(req Request) Resource {
			return Resource{Namespace: "ns", ResourceType: "config", Action: ActionWrite}
		},
		Handle: func(ctx context.Context, req Request) (any, error) { return "ok", nil },
	}
	d := NewDispatcher(NewRegistry(spec), NewPolicyAuthorizer(), NewLimiterSet(100, 100, 100, 100), telemetry.Noop(), testLogger())
	req := Request{
		Conn: newTestConn(),
		Payload: &transport.Payload{Type: "Write"},
		Auth: &Principal{Policies: []Policy{{NamespacePattern: "*", GroupPattern: "*", TypePattern: "*", Actions: []Action{ActionRead}}}},
	}
	_, err := d.Dispatch(context.Background(), req)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindAuthorization, appErr.Kind)
}

func TestDispatchRateLimitsConnection(t *testing.T) {
	spec := HandlerSpec{
		Tag: "Ping",
		AllowAnonymous: true,
		Handle: func(ctx context.Context, req Request) (any, error) { return "pong", nil },
	}
	d := NewDispatcher(NewRegistry(spec), NewPolicyAuthorizer(), NewLimiterSet(0, 1, 100, 100), telemetry.Noop(), testLogger())
	req := Request{Conn: newTestConn(), Payload: &transport.Payload{Type: "Ping"}}

	_, err := d.Dispatch(context.Background(), req)
	require.NoError(t, err)

	_, err = d.Dispatch(context.Background(), req)
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperr.KindResource, appErr.Kind)
}
