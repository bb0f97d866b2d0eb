package transport

// Config category messages.

const (
	TypeConfigQueryRequest = "ConfigQueryRequest"
	TypeConfigQueryResponse = "ConfigQueryResponse"
	TypeConfigPublishRequest = "ConfigPublishRequest"
	TypeConfigPublishResponse = "ConfigPublishResponse"
	TypeConfigRemoveRequest = "ConfigRemoveRequest"
	TypeConfigRemoveResponse = "ConfigRemoveResponse"
	TypeConfigBatchListenRequest = "ConfigBatchListenRequest"
	TypeConfigBatchListenResponse = "ConfigBatchListenResponse"
	TypeConfigChangeNotify = "ConfigChangeNotify"
	TypeConfigFuzzyWatchRequest = "ConfigFuzzyWatchRequest"
	TypeConfigFuzzyWatchResponse = "ConfigFuzzyWatchResponse"
	TypeConfigFuzzyWatchSync = "ConfigFuzzyWatchSync"
	TypeConfigChangeClusterSync = "ConfigChangeClusterSync"
	TypeClientConfigMetricRequest = "ClientConfigMetricRequest"
)

type ConfigKey struct {
	Namespace string `json:"namespace"`
	Group string `json:"group"`
	DataID string `json:"data_id"`
}

type ConfigQueryRequest struct {
	ConfigKey
	Tag string `json:"tag,omitempty"` // gray overlay label predicate match
}

type ConfigQueryResponse struct {
	Content string `json:"content"`
	MD5 string `json:"md5"`
	Type string `json:"type"`
	Revision uint64 `json:"revision"`
}

type ConfigPublishRequest struct {
	ConfigKey
	Content string `json:"content"`
	Type string `json:"type"`
	Tags []string `json:"tags,omitempty"`
	GraySelector *GraySelector `json:"gray_selector,omitempty"`
}

type GraySelector struct {
	Kind string `json:"kind"` // "ip_range"|"label_match"|"connection_set"
	IPRanges []string `json:"ip_ranges,omitempty"`
	LabelMatch map[string]string `json:"label_match,omitempty"`
	ConnectionIDs []string `json:"connection_ids,omitempty"`
}

type ConfigPublishResponse struct {
	Revision uint64 `json:"revision"`
}

type ConfigRemoveRequest struct {
	ConfigKey
}
type ConfigRemoveResponse struct{ Revision uint64 `json:"revision"` }

// ConfigListenItem is one entry in a ConfigBatchListenRequest.
type ConfigListenItem struct {
	ConfigKey
	MD5 string `json:"md5"`
}

type ConfigBatchListenRequest struct {
	Items []ConfigListenItem `json:"items"`
	SinceRevision uint64 `json:"since_revision"`
}

type ConfigBatchListenResponse struct {
	Changed []ConfigKey `json:"changed"`
	GlobalRevision uint64 `json:"global_revision"`
}

// ConfigChangeNotify is server-initiated when a retained listen's config
// is mutated.
type ConfigChangeNotify struct {
	ConfigKey
	Revision uint64 `json:"revision"`
}

type ConfigFuzzyWatchRequest struct {
	Namespace string `json:"namespace"`
	Pattern string `json:"pattern"`
	Subscribe bool `json:"subscribe"`
}
type ConfigFuzzyWatchResponse struct {
	Matching []ConfigKey `json:"matching"`
}

// ConfigFuzzyWatchSync is the periodic full-set reconciliation push.
type ConfigFuzzyWatchSync struct {
	Namespace string `json:"namespace"`
	Pattern string `json:"pattern"`
	Matching []ConfigKey `json:"matching"`
	Revision uint64 `json:"revision"`
}

// ConfigChangeClusterSync is the cross-node cache-invalidation message
// carried over the AMQP cluster-sync bus, not the client
// stream; included here because it shares the same envelope shape.
type ConfigChangeClusterSync struct {
	ConfigKey
	Revision uint64 `json:"revision"`
	NodeID string `json:"node_id"`
}

type ClientConfigMetricRequest struct {
	Metrics map[string]float64 `json:"metrics"`
}

func RegisterConfigTypes(b *RegistryBuilder) *RegistryBuilder {
	RegisterJSON[ConfigQueryRequest](b, TypeConfigQueryRequest)
	RegisterJSON[ConfigPublishRequest](b, TypeConfigPublishRequest)
	RegisterJSON[ConfigRemoveRequest](b, TypeConfigRemoveRequest)
	RegisterJSON[ConfigBatchListenRequest](b, TypeConfigBatchListenRequest)
	RegisterJSON[ConfigFuzzyWatchRequest](b, TypeConfigFuzzyWatchRequest)
	RegisterJSON[ClientConfigMetricRequest](b, TypeClientConfigMetricRequest)
	return b
}
