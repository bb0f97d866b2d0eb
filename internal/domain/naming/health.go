package naming

import (
	"net"
	"net/http"
	"time"

	"github.com/batata-io/batata/internal/transport"
)

// CheckKind selects the active health probe a persistent instance uses
// (: "persistent-instance active health checks (TCP/HTTP)").
type CheckKind int8

const (
	CheckTCP CheckKind = iota
	CheckHTTP
)

// HealthChecker runs periodic active probes against every persistent
// instance and flips Healthy only after two consecutive opposite results
//, so one dropped packet never flaps a service.
type HealthChecker struct {
	registry *Registry
	period time.Duration
	client *http.Client
}

func NewHealthChecker(registry *Registry, period time.Duration) *HealthChecker {
	return &HealthChecker{
		registry: registry,
		period: period,
		client: &http.Client{Timeout: 2 * time.Second},
	}
}

// Run probes every persistent instance every period until stop closes.
func (hc *HealthChecker) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(hc.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			hc.probeOnce()
		}
	}
}

func (hc *HealthChecker) probeOnce() {
	hc.registry.mu.RLock()
	records := make(map[transport.ServiceKey]*serviceRecord, len(hc.registry.services))
	for k, v := range hc.registry.services {
		records[k] = v
	}
	hc.registry.mu.RUnlock()

	for key, rec := range records {
		rec.mu.Lock()
		var changed bool
		for _, in := range rec.instances {
			if in.Ephemeral || !in.Enabled {
				continue
			}
			result := hc.probe(in)
			if result == in.Healthy {
				in.consecutiveFlips = 0
				continue
			}
			in.consecutiveFlips++
			in.lastHealthResult = result
			if in.consecutiveFlips >= 2 {
				in.Healthy = result
				changed = true
				in.consecutiveFlips = 0
			}
		}
		var rev uint64
		if changed {
			rec.revision++
			rev = rec.revision
		}
		rec.mu.Unlock()
		if changed {
			rec.notify(key, rev)
		}
	}
}

func (hc *HealthChecker) probe(in *Instance) bool {
	kind := CheckTCP
	if in.Metadata["check_kind"] == "http" {
		kind = CheckHTTP
	}
	addr := net.JoinHostPort(in.IP, itoa(in.Port))

	switch kind {
	case CheckHTTP:
		path := in.Metadata["check_path"]
		if path == "" {
			path = "/health"
		}
		resp, err := hc.client.Get("http://" + addr + path)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		return resp.StatusCode >= 200 && resp.StatusCode < 300
	default:
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}
