package store

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"

	"github.com/batata-io/batata/internal/apperr"
	"github.com/batata-io/batata/internal/transport"
)

const defaultHistoryLimit = 20

type memoryRecord struct {
	rec ConfigRecord
	history []HistoryEntry
}

// Memory is the in-memory reference ConfigStore adapter: a stand-in for
// whatever durable database a deployment actually points the collaborator
// interface at. It keeps every revision up to historyLimit per key.
type Memory struct {
	mu sync.Mutex
	records map[transport.ConfigKey]*memoryRecord
	historyLimit int
}

func NewMemory(historyLimit int) *Memory {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Memory{records: make(map[transport.ConfigKey]*memoryRecord), historyLimit: historyLimit}
}

func (m *Memory) Get(_ context.Context, key transport.ConfigKey) (ConfigRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.records[key]
	if !ok {
		return ConfigRecord{}, false, nil
	}
	return mr.rec, true, nil
}

func (m *Memory) Put(_ context.Context, key transport.ConfigKey, content, configType string, tags []string) (ConfigRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := md5.Sum([]byte(content))
	md5hex := hex.EncodeToString(sum[:])

	mr, ok := m.records[key]
	if !ok {
		mr = &memoryRecord{}
		m.records[key] = mr
	}
	mr.rec.Revision++
	mr.rec.Key, mr.rec.Content, mr.rec.Type, mr.rec.Tags, mr.rec.MD5 = key, content, configType, tags, md5hex

	mr.history = append(mr.history, HistoryEntry{
		Revision: mr.rec.Revision, Content: content, MD5: md5hex, Timestamp: time.Now().UnixNano(),
	})
	if len(mr.history) > m.historyLimit {
		mr.history = mr.history[len(mr.history)-m.historyLimit:]
	}
	return mr.rec, nil
}

func (m *Memory) Delete(_ context.Context, key transport.ConfigKey) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.records[key]
	if !ok {
		return 0, apperr.New(apperr.KindState, "config not found")
	}
	delete(m.records, key)
	return mr.rec.Revision, nil
}

func (m *Memory) History(_ context.Context, key transport.ConfigKey, limit int) ([]HistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mr, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	if limit <= 0 || limit > len(mr.history) {
		limit = len(mr.history)
	}
	out := make([]HistoryEntry, limit)
	copy(out, mr.history[len(mr.history)-limit:])
	return out, nil
}

var _ ConfigStore = (*Memory)(nil)
