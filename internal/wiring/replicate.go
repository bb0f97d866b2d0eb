package wiring

import (
	"encoding/json"

	"go.uber.org/fx"

	"github.com/batata-io/batata/internal/domain/configengine"
	"github.com/batata-io/batata/internal/domain/consensus"
	"github.com/batata-io/batata/internal/domain/naming"
	"github.com/batata-io/batata/internal/transport"
)

// replicateModule registers the Consensus Bridge's apply-path callbacks
//: the Service Registry and Config Change Engine never import
// consensus themselves, so the decode-and-re-enter glue lives here, the
// same place the connection-close cascade does.
var replicateModule = fx.Invoke(func(bridge *consensus.Bridge, reg *naming.Registry, engine *configengine.Engine) {
	bridge.OnApply(consensus.EntryServiceInstanceWrite, func(body []byte) (any, error) {
		var w consensus.ServiceInstanceWrite
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, err
		}
		key := transport.ServiceKey{Namespace: w.Namespace, Group: w.Group, Service: w.Service}
		inst := naming.Instance{
			IP: w.IP, Port: w.Port, Weight: w.Weight, Healthy: w.Healthy,
			Enabled: w.Enabled, Ephemeral: false, Cluster: w.Cluster, Metadata: w.Metadata,
		}
		rev := reg.Register(key, transport.InstanceOp(w.Op), inst)
		return consensus.ApplyResult{Value: rev}, nil
	})

	bridge.OnApply(consensus.EntryConfigWrite, func(body []byte) (any, error) {
		var w consensus.ConfigWrite
		if err := json.Unmarshal(body, &w); err != nil {
			return nil, err
		}
		key := transport.ConfigKey{Namespace: w.Namespace, Group: w.Group, DataID: w.DataID}
		engine.ApplyRemoteChange(key, w.Revision)
		return consensus.ApplyResult{Value: w.Revision}, nil
	})
})
