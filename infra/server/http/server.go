// Package http hosts Batata's operational HTTP surface: liveness and
// readiness probes plus a pprof-style debug mux, routed with chi the way
// the teacher's internal/handler/lp package routes its own long-polling
// endpoint off a chi.Router. This is deliberately thin — CRUD translation
// of the gRPC/naming/config protocol never lives here, only operational
// probes and (mounted separately by infra/server/ws) the legacy WebSocket
// compatibility surface.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/batata-io/batata/internal/domain/consensus"
)

// NewRouter builds the chi.Router every HTTP-facing component mounts its
// routes on — infra/server/ws registers its /ws/* handlers on this same
// instance so both surfaces share one listener.
func NewRouter(bridge *consensus.Bridge) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		// Ready once the cluster has settled on a leader, whether or not
		// this node is it — a follower with no leader hint can't serve a
		// Propose-backed write and shouldn't receive traffic yet.
		if bridge.IsLeader() || bridge.LeaderHint() != "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	r.Mount("/debug", middleware.Profiler())
	return r
}
