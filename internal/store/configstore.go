// Package store defines the external collaborators the core consumes but
// does not own: the authoritative config database and the replicated
// metadata log. Only ConfigStore gets a concrete adapter
// here — ReplicatedLog's propose/apply/subscribe shape is already
// internal/domain/consensus.Bridge itself, not a second abstraction.
package store

import (
	"context"

	"github.com/batata-io/batata/internal/transport"
)

// ConfigRecord is what the store persists for one config key.
type ConfigRecord struct {
	Key transport.ConfigKey
	Content string
	Type string
	Tags []string
	MD5 string
	Revision uint64
}

// HistoryEntry is one retained past revision.
type HistoryEntry struct {
	Revision uint64
	Content string
	MD5 string
	Timestamp int64
}

// ConfigStore is the external collaborator boundary for durable config
// storage. The engine never assumes anything about the
// backing technology beyond this CRUD+history contract.
type ConfigStore interface {
	Get(ctx context.Context, key transport.ConfigKey) (ConfigRecord, bool, error)
	Put(ctx context.Context, key transport.ConfigKey, content, configType string, tags []string) (ConfigRecord, error)
	Delete(ctx context.Context, key transport.ConfigKey) (uint64, error)
	History(ctx context.Context, key transport.ConfigKey, limit int) ([]HistoryEntry, error)
}
