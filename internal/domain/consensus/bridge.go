package consensus

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb/v2"

	"github.com/batata-io/batata/internal/apperr"
)

// Config configures the Bridge, sourced from config.RaftConfig.
type Config struct {
	NodeID string
	DataDir string
	BindAddr string
	Bootstrap bool
	JoinAddrs []string
	ApplyTimeout time.Duration
}

// Bridge is the Consensus Bridge component: a thin interface over an
// external Raft implementation. Non-leader nodes' Propose calls fail
// fast with apperr.NotLeader carrying the current leader hint; it is the
// caller's (handler's) job to retry against that node.
type Bridge struct {
	raft *raft.Raft
	fsm *fsm
	cfg Config
	applyTimeout time.Duration
}

func New(cfg Config) (*Bridge, error) {
	if cfg.ApplyTimeout <= 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("consensus: create data dir: %w", err)
	}

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)

	logStore, err := raftboltdb.New(raftboltdb.Options{Path: filepath.Join(cfg.DataDir, "raft-log.bolt")})
	if err != nil {
		return nil, fmt.Errorf("consensus: open log store: %w", err)
	}
	stableStore, err := raftboltdb.New(raftboltdb.Options{Path: filepath.Join(cfg.DataDir, "raft-stable.bolt")})
	if err != nil {
		return nil, fmt.Errorf("consensus: open stable store: %w", err)
	}
	snapStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: open snapshot store: %w", err)
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("consensus: resolve bind addr: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: create transport: %w", err)
	}

	machine := newFSM()
	r, err := raft.NewRaft(raftCfg, machine, logStore, stableStore, snapStore, transport)
	if err != nil {
		return nil, fmt.Errorf("consensus: start raft: %w", err)
	}

	b := &Bridge{raft: r, fsm: machine, cfg: cfg, applyTimeout: cfg.ApplyTimeout}

	if cfg.Bootstrap {
		servers := []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}}
		for _, addr := range cfg.JoinAddrs {
			servers = append(servers, raft.Server{ID: raft.ServerID(addr), Address: raft.ServerAddress(addr)})
		}
		f := r.BootstrapCluster(raft.Configuration{Servers: servers})
		if err := f.Error(); err != nil && err != raft.ErrCantBootstrap {
			return nil, fmt.Errorf("consensus: bootstrap: %w", err)
		}
	}

	return b, nil
}

// OnApply registers the handler that re-enters a domain component when
// an entry of kind commits.
func (b *Bridge) OnApply(kind EntryKind, fn ApplyFunc) { b.fsm.register(kind, fn) }

// IsLeader reports whether this node currently holds the raft leadership.
func (b *Bridge) IsLeader() bool { return b.raft.State() == raft.Leader }

// LeaderHint returns the current leader's raft bind address, or "" if
// none is known.
func (b *Bridge) LeaderHint() string {
	addr, _ := b.raft.LeaderWithID()
	return string(addr)
}

// Propose submits entry to the raft log, blocking until it's applied or
// applyTimeout elapses. Non-leader nodes get apperr.NotLeader immediately
// rather than forwarding transparently — handlers already have the
// leader hint and can redirect the client, which is simpler and more
// visible than an internal forward-and-retry hop.
func (b *Bridge) Propose(ctx context.Context, entry Entry) (ApplyResult, error) {
	if !b.IsLeader() {
		return ApplyResult{}, apperr.NotLeader(b.LeaderHint())
	}

	body, err := json.Marshal(entry)
	if err != nil {
		return ApplyResult{}, apperr.Wrap(apperr.KindInternal, "encode raft entry", err)
	}

	f := b.raft.Apply(body, b.applyTimeout)
	if err := f.Error(); err != nil {
		if err == raft.ErrLeadershipLost || err == raft.ErrNotLeader {
			return ApplyResult{}, apperr.NotLeader(b.LeaderHint())
		}
		if err == raft.ErrEnqueueTimeout {
			return ApplyResult{}, apperr.New(apperr.KindConsensus, "consensus apply timed out")
		}
		return ApplyResult{}, apperr.Wrap(apperr.KindConsensus, "consensus apply failed", err)
	}

	resp := f.Response()
	if result, ok := resp.(ApplyResult); ok {
		return result, nil
	}
	if applyErr, ok := resp.(error); ok && applyErr != nil {
		return ApplyResult{}, apperr.Wrap(apperr.KindValidation, "replicated write rejected", applyErr)
	}
	return ApplyResult{}, nil
}

// ApplyStream exposes every committed entry as it lands, used by
// components that must drive state purely from replication rather than
// from their own local writes.
func (b *Bridge) ApplyStream(buffer int) (<-chan AppliedEntry, func()) { return b.fsm.subscribe(buffer) }

// LeaderCh surfaces raft's own leadership-change notifications.
func (b *Bridge) LeaderCh() <-chan bool { return b.raft.LeaderCh() }

func (b *Bridge) Shutdown() error { return b.raft.Shutdown().Error() }
