// Package consensus implements the Consensus Bridge component: a thin
// wrapper over hashicorp/raft exposing propose/apply-stream/is-leader/
// leader-hint to the Service Registry and Config Change Engine, so
// neither of those packages needs to know anything about Raft itself.
// Entries are the typed proposals those two components submit; FSM
// (fsm.go) is where they're actually applied, re-entering the
// registry/engine with a from-replication flag.
package consensus

import "encoding/json"

// EntryKind tags the payload carried by one raft.Log so FSM.Apply knows
// how to decode and dispatch it.
type EntryKind string

const (
	EntryServiceInstanceWrite EntryKind = "ServiceInstanceWrite"
	EntryConfigWrite EntryKind = "ConfigWrite"
	EntryConfigRemove EntryKind = "ConfigRemove"
)

// Entry is the envelope proposed to the raft log ( "propose(entry)").
type Entry struct {
	Kind EntryKind
	Body []byte
}

// ServiceInstanceWrite is the payload for a persistent instance
// register/deregister.
type ServiceInstanceWrite struct {
	Namespace string `json:"namespace"`
	Group string `json:"group"`
	Service string `json:"service"`
	Op int8 `json:"op"` // mirrors transport.InstanceOp
	IP string `json:"ip"`
	Port int32 `json:"port"`
	Weight float64 `json:"weight"`
	Healthy bool `json:"healthy"`
	Enabled bool `json:"enabled"`
	Cluster string `json:"cluster"`
	Metadata map[string]string `json:"metadata"`
}

func (e ServiceInstanceWrite) Encode() Entry {
	b, _ := json.Marshal(e)
	return Entry{Kind: EntryServiceInstanceWrite, Body: b}
}

// ConfigWrite is the payload for a config publish that must replicate
// cluster metadata about the write.
type ConfigWrite struct {
	Namespace string `json:"namespace"`
	Group string `json:"group"`
	DataID string `json:"data_id"`
	MD5 string `json:"md5"`
	Revision uint64 `json:"revision"`
	NodeID string `json:"node_id"`
}

func (e ConfigWrite) Encode() Entry {
	b, _ := json.Marshal(e)
	return Entry{Kind: EntryConfigWrite, Body: b}
}

// ApplyResult is what propose resolves to once the entry commits.
type ApplyResult struct {
	Index uint64
	Value any
}
