// Package naming implements the Service Registry component:
// instance CRUD, list/query/subscribe, ephemeral-instance-bound-to-
// connection lifecycle, persistent-instance active health checking, and
// a fuzzy-watch secondary index. The per-service locking and actor-style
// fan-out loop generalize the teacher's internal/domain/registry.Cell
// (one mailbox per user) into one mailbox per service (one delivery unit
// per ServiceKey instead of per user id).
package naming

import (
	"sync"

	"github.com/batata-io/batata/internal/transport"
)

// Instance is the registry's internal representation of one service
// endpoint, generalizing transport.InstanceDTO with the bookkeeping
// fields the wire DTO doesn't need to carry.
type Instance struct {
	IP string
	Port int32
	Weight float64
	Healthy bool
	Enabled bool
	Ephemeral bool
	Cluster string
	Metadata map[string]string

	// ConnID binds an ephemeral instance to the connection that
	// registered it, so Connection Registry close events can deregister
	// it automatically.
	ConnID string

	lastHealthResult bool
	consecutiveFlips int
}

func (i Instance) dto() transport.InstanceDTO {
	return transport.InstanceDTO{
		IP: i.IP, Port: i.Port, Weight: i.Weight, Healthy: i.Healthy,
		Enabled: i.Enabled, Ephemeral: i.Ephemeral, Cluster: i.Cluster,
		Metadata: i.Metadata,
	}
}

func instanceKey(i transport.InstanceDTO) string {
	return i.Cluster + "|" + i.IP + "|" + itoa(i.Port)
}

func itoa(p int32) string {
	if p == 0 {
		return "0"
	}
	neg := p < 0
	if neg {
		p = -p
	}
	var buf [12]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// serviceRecord is one service's instance set, fine-grained-locked so a
// write to one service never contends with reads/writes on another.
type serviceRecord struct {
	mu sync.RWMutex
	instances map[string]*Instance // keyed by instanceKey
	revision uint64

	// onChange fans the new revision out to the Subscription Index
	// ( "Push triggering": the registry commits locally first,
	// then hands (service_key, revision) off without waiting for
	// delivery). Set once by Registry at record-creation time.
	onChange func(transport.ServiceKey, uint64)
}

func newServiceRecord(onChange func(transport.ServiceKey, uint64)) *serviceRecord {
	return &serviceRecord{instances: make(map[string]*Instance), onChange: onChange}
}

func (r *serviceRecord) upsert(key transport.ServiceKey, in Instance) uint64 {
	r.mu.Lock()
	r.instances[instanceKey(in.dto())] = &in
	r.revision++
	rev := r.revision
	r.mu.Unlock()
	r.notify(key, rev)
	return rev
}

func (r *serviceRecord) remove(key transport.ServiceKey, in transport.InstanceDTO) uint64 {
	r.mu.Lock()
	delete(r.instances, instanceKey(in))
	r.revision++
	rev := r.revision
	r.mu.Unlock()
	r.notify(key, rev)
	return rev
}

func (r *serviceRecord) snapshot(clusters []string, healthyOnly bool) ([]transport.InstanceDTO, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]transport.InstanceDTO, 0, len(r.instances))
	for _, in := range r.instances {
		if healthyOnly && !in.Healthy {
			continue
		}
		if len(clusters) > 0 && !contains(clusters, in.Cluster) {
			continue
		}
		out = append(out, in.dto())
	}
	return out, r.revision
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// notify hands the new revision to the Subscription Index.
func (r *serviceRecord) notify(key transport.ServiceKey, rev uint64) {
	if r.onChange != nil {
		r.onChange(key, rev)
	}
}
