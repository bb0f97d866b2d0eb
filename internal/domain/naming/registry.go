package naming

import (
	"sort"
	"strings"
	"sync"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/transport"
)

// Registry is the Service Registry component's public surface: a single
// map of serviceRecords keyed by ServiceKey, guarded by one RWMutex, with
// each serviceRecord carrying its own lock for its instance set.
type Registry struct {
	mu sync.RWMutex
	services map[transport.ServiceKey]*serviceRecord

	fuzzy *fuzzyIndex

	// onChange is invoked after every commit with the service's new
	// revision, wired to subscription.Index.Notify by module.go.
	onChange func(transport.ServiceKey, uint64)
}

func NewRegistry() *Registry {
	return &Registry{
		services: make(map[transport.ServiceKey]*serviceRecord),
		fuzzy: newFuzzyIndex(),
	}
}

// OnChange installs the callback the Subscription Index uses to learn
// about new revisions. Called once at wiring time (module.go); naming has
// no compile-time dependency on the subscription package: the registry
// hands off and never waits for push completion.
func (r *Registry) OnChange(fn func(transport.ServiceKey, uint64)) {
	r.onChange = fn
}

func (r *Registry) record(key transport.ServiceKey) *serviceRecord {
	r.mu.RLock()
	rec, ok := r.services[key]
	r.mu.RUnlock()
	if ok {
		return rec
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok = r.services[key]
	if !ok {
		rec = newServiceRecord(func(k transport.ServiceKey, rev uint64) {
			if r.onChange != nil {
				r.onChange(k, rev)
			}
		})
		r.services[key] = rec
		r.fuzzy.onServiceAdded(key)
	}
	return rec
}

// Register applies one instance register/deregister.
func (r *Registry) Register(key transport.ServiceKey, op transport.InstanceOp, in Instance) uint64 {
	rec := r.record(key)
	var rev uint64
	if op == transport.InstanceDeregister {
		rev = rec.remove(key, in.dto())
	} else {
		rev = rec.upsert(key, in)
	}
	return rev
}

// BatchRegister applies a homogeneous batch of instances under one
// ServiceKey+Op. Rejecting heterogeneous ephemeral/persistent mixes
// before any mutation resolves Open Question on batch
// validation (see DESIGN.md).
func (r *Registry) BatchRegister(key transport.ServiceKey, op transport.InstanceOp, instances []transport.InstanceDTO) (uint64, error) {
	if len(instances) == 0 {
		return 0, apperr.New(apperr.KindValidation, "batch must contain at least one instance")
	}
	ephemeral := instances[0].Ephemeral
	for _, in := range instances[1:] {
		if in.Ephemeral != ephemeral {
			return 0, apperr.New(apperr.KindValidation, "batch mixes ephemeral and persistent instances")
		}
	}

	rec := r.record(key)
	var rev uint64
	for _, in := range instances {
		inst := Instance{
			IP: in.IP, Port: in.Port, Weight: in.Weight, Healthy: in.Healthy,
			Enabled: in.Enabled, Ephemeral: in.Ephemeral, Cluster: in.Cluster,
			Metadata: in.Metadata,
		}
		if op == transport.InstanceDeregister {
			rev = rec.remove(key, in)
		} else {
			rev = rec.upsert(key, inst)
		}
	}
	return rev, nil
}

func (r *Registry) Query(key transport.ServiceKey, clusters []string, healthyOnly bool) ([]transport.InstanceDTO, uint64) {
	r.mu.RLock()
	rec, ok := r.services[key]
	r.mu.RUnlock()
	if !ok {
		return nil, 0
	}
	return rec.snapshot(clusters, healthyOnly)
}

// List enumerates service names within a namespace/group matching an
// optional glob pattern, paginated.
func (r *Registry) List(namespace, group, pattern string, offset, pageSize int) ([]string, int, bool) {
	r.mu.RLock()
	var names []string
	for key := range r.services {
		if key.Namespace != namespace || key.Group != group {
			continue
		}
		if pattern != "" && !matchPattern(pattern, key.Service) {
			continue
		}
		names = append(names, key.Service)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	total := len(names)
	if offset > total {
		offset = total
	}
	end := offset + pageSize
	if end > total || pageSize <= 0 {
		end = total
	}
	page := names[offset:end]
	return page, total, end < total
}

func matchPattern(pattern, value string) bool {
	if pattern == "*" || pattern == "" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(value, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == value
}

// DeregisterByConnection removes every ephemeral instance bound to a
// closed connection.
func (r *Registry) DeregisterByConnection(connID string) {
	r.mu.RLock()
	records := make(map[transport.ServiceKey]*serviceRecord, len(r.services))
	for k, v := range r.services {
		records[k] = v
	}
	r.mu.RUnlock()

	for key, rec := range records {
		rec.mu.RLock()
		var toRemove []transport.InstanceDTO
		for _, in := range rec.instances {
			if in.Ephemeral && in.ConnID == connID {
				toRemove = append(toRemove, in.dto())
			}
		}
		rec.mu.RUnlock()
		for _, dto := range toRemove {
			rec.remove(key, dto)
		}
	}
}

// FuzzyWatch returns the current set of service names under namespace
// matching pattern. It does not
// itself subscribe; callers that want ongoing add/remove/periodic-sync
// notifications use SubscribeFuzzy.
func (r *Registry) FuzzyWatch(namespace, pattern string, _ bool) []string {
	r.mu.RLock()
	var names []string
	for key := range r.services {
		if key.Namespace == namespace && matchPattern(pattern, key.Service) {
			names = append(names, key.Service)
		}
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// SubscribeFuzzy registers namespace/pattern for ongoing incremental
// add events and periodic full-set reconciliation, returning the
// channel to consume and an unsubscribe func.
func (r *Registry) SubscribeFuzzy(namespace, pattern string) (<-chan transport.NamingFuzzyWatchSync, func()) {
	return r.fuzzy.subscribe(namespace, pattern)
}
