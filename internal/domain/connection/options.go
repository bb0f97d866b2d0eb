package connection

// This file groups the Registry's constructor defaults documentation
// alongside the Option type declared in registry.go, matching the
// teacher's split between a type's core file and its options.go. The
// default values mirror session defaults:
// - probe_interval: 20s
// - probe_timeout: 3s
// - drain_timeout: 30s
//
// All three are also exposed through config.SessionConfig so operators
// can override them per-deployment. probe_interval and drain_timeout are
// applied to the Registry via module.go; probe_timeout bounds the
// ClientDetection wait in infra/server/grpc's Server.Probe.
