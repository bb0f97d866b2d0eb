package transport

import "fmt"

// ResponseTypeTag maps a handler's returned response value back to the
// wire type tag it must be encoded under. Handlers return plain response
// structs; this is the single
// place that knows the Request->Response tag pairing, so handler.go files
// never have to carry their own wire constants for what they return.
func ResponseTypeTag(v any) string {
	switch v.(type) {
	case SetupAckResponse:
		return TypeSetupAckResponse
	case HealthCheckResponse:
		return TypeHealthCheckResponse
	case ServerCheckResponse:
		return TypeServerCheckResponse
	case ServerLoaderInfoResponse:
		return TypeServerLoaderInfoResp
	case ServerReloadResponse:
		return TypeServerReloadResponse
	case ClientDetectionRequest:
		return TypeClientDetectionRequest
	case ConnectResetRequest:
		return TypeConnectResetRequest

	case ConfigQueryResponse:
		return TypeConfigQueryResponse
	case ConfigPublishResponse:
		return TypeConfigPublishResponse
	case ConfigRemoveResponse:
		return TypeConfigRemoveResponse
	case ConfigBatchListenResponse:
		return TypeConfigBatchListenResponse
	case ConfigFuzzyWatchResponse:
		return TypeConfigFuzzyWatchResponse
	case ConfigChangeNotify:
		return TypeConfigChangeNotify

	case InstanceResponse:
		return TypeInstanceResponse
	case BatchInstanceResponse:
		return TypeBatchInstanceResponse
	case ServiceListResponse:
		return TypeServiceListResponse
	case ServiceQueryResponse:
		return TypeServiceQueryResponse
	case SubscribeServiceResponse:
		return TypeSubscribeServiceResponse
	case NotifySubscriber:
		return TypeNotifySubscriber
	case NamingFuzzyWatchSync:
		return TypeNamingFuzzyWatchSync

	default:
		// Handlers that return (nil, nil) — PushAckRequest, ClientDetectionResponse —
		// never reach here; the caller only calls this when resp != nil.
		panic(fmt.Sprintf("transport: no response type tag registered for %T", v))
	}
}
