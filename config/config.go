// Package config loads and hot-reloads Batata's configuration, the same
// way the teacher's cmd/cmd.go calls config.LoadConfig with an optional
// --config_file flag, backed by viper and fsnotify.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

var durationHook = mapstructure.ComposeDecodeHookFunc(
	mapstructure.StringToTimeDurationHookFunc,
	mapstructure.TextUnmarshallerHookFunc,
)

// Config is the fully-resolved, typed configuration surface. Fields here
// correspond to the tunables named throughout the design (probe_interval,
// coalesce_window, push_ack_timeout,...); every one of them is
// overridable from file/env/flag.
type Config struct {
	NodeID string `mapstructure:"node_id"`
	GRPC GRPCConfig `mapstructure:"grpc"`
	HTTP HTTPConfig `mapstructure:"http"`
	Raft RaftConfig `mapstructure:"raft"`
	Session SessionConfig `mapstructure:"session"`
	Naming NamingConfig `mapstructure:"naming"`
	Config_ ConfigEngine `mapstructure:"config_engine"`
	Push PushConfig `mapstructure:"push"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Log LogConfig `mapstructure:"log"`
}

type GRPCConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type HTTPConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

type RaftConfig struct {
	DataDir string `mapstructure:"data_dir"`
	BindAddr string `mapstructure:"bind_addr"`
	Bootstrap bool `mapstructure:"bootstrap"`
	JoinAddrs []string `mapstructure:"join_addrs"`
	ApplyTimout Duration `mapstructure:"apply_timeout"`
}

type SessionConfig struct {
	ProbeInterval Duration `mapstructure:"probe_interval"`
	ProbeTimeout Duration `mapstructure:"probe_timeout"`
	DrainTimeout Duration `mapstructure:"drain_timeout"`
	RequestTimeout Duration `mapstructure:"request_timeout"`
	MaxInFlight int `mapstructure:"max_in_flight"`
	OutboundBuffer int `mapstructure:"outbound_buffer"`
	CancelGrace Duration `mapstructure:"cancel_grace"`
}

type NamingConfig struct {
	SyncInterval Duration `mapstructure:"sync_interval"`
	CheckPeriod Duration `mapstructure:"check_period"`
	MaxPushInstances int `mapstructure:"max_push_instances"`
}

type ConfigEngine struct {
	ListenTimeout Duration `mapstructure:"listen_timeout"`
	HistoryLimit int `mapstructure:"history_limit"`
	ClusterSyncAMQP string `mapstructure:"cluster_sync_amqp"` // empty disables cross-node sync
	FuzzySyncInterval Duration `mapstructure:"fuzzy_sync_interval"`
}

type PushConfig struct {
	MaxQueued int `mapstructure:"max_queued"`
	AckTimeout Duration `mapstructure:"ack_timeout"`
	MaxAttempts int `mapstructure:"max_attempts"`
	InitialBackoff Duration `mapstructure:"initial_backoff"`
	MaxBackoff Duration `mapstructure:"max_backoff"`
}

type DispatchConfig struct {
	CoalesceWindow Duration `mapstructure:"coalesce_window"`
	MaxCoalesce Duration `mapstructure:"max_coalesce"`
	ConnRateLimit float64 `mapstructure:"conn_rate_limit"`
	ConnRateBurst int `mapstructure:"conn_rate_burst"`
	HandlerRateLimit float64 `mapstructure:"handler_rate_limit"`
	HandlerRateBurst int `mapstructure:"handler_rate_burst"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
	JSON bool `mapstructure:"json"`
	Otel bool `mapstructure:"otel"`
}

// Duration wraps time.Duration so viper/mapstructure parse "20s"-style
// strings straight into the typed config fields.
type Duration struct{ time.Duration }

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func defaults(v *viper.Viper) {
	v.SetDefault("node_id", "")
	v.SetDefault("grpc.listen_addr", ":9848")
	v.SetDefault("http.listen_addr", ":9849")
	v.SetDefault("raft.data_dir", "./data/raft")
	v.SetDefault("raft.bind_addr", "127.0.0.1:9850")
	v.SetDefault("raft.bootstrap", true)
	v.SetDefault("raft.apply_timeout", "5s")
	v.SetDefault("session.probe_interval", "20s")
	v.SetDefault("session.probe_timeout", "3s")
	v.SetDefault("session.drain_timeout", "30s")
	v.SetDefault("session.request_timeout", "3s")
	v.SetDefault("session.max_in_flight", 128)
	v.SetDefault("session.outbound_buffer", 256)
	v.SetDefault("session.cancel_grace", "1s")
	v.SetDefault("naming.sync_interval", "5m")
	v.SetDefault("naming.check_period", "5s")
	v.SetDefault("naming.max_push_instances", 0)
	v.SetDefault("config_engine.listen_timeout", "30s")
	v.SetDefault("config_engine.history_limit", 20)
	v.SetDefault("config_engine.cluster_sync_amqp", "")
	v.SetDefault("config_engine.fuzzy_sync_interval", "5m")
	v.SetDefault("push.max_queued", 1024)
	v.SetDefault("push.ack_timeout", "3s")
	v.SetDefault("push.max_attempts", 3)
	v.SetDefault("push.initial_backoff", "100ms")
	v.SetDefault("push.max_backoff", "1s")
	v.SetDefault("dispatch.coalesce_window", "10ms")
	v.SetDefault("dispatch.max_coalesce", "100ms")
	v.SetDefault("dispatch.conn_rate_limit", 50.0)
	v.SetDefault("dispatch.conn_rate_burst", 100)
	v.SetDefault("dispatch.handler_rate_limit", 200.0)
	v.SetDefault("dispatch.handler_rate_burst", 400)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)
	v.SetDefault("log.otel", false)
}

// Load builds the viper instance, applies defaults/file/env, and decodes
// into a Config. A non-empty path enables fsnotify-based hot reload via
// Watch.
func Load(path string) (*Config, *viper.Viper, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix("BATATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg, viper.DecodeHook(durationHook)); err != nil {
		return nil, nil, fmt.Errorf("config: decode: %w", err)
	}

	return cfg, v, nil
}

// Watch installs an fsnotify watcher (via viper.WatchConfig) that re-decodes
// the config file and invokes onChange with the refreshed value whenever
// it changes on disk. Mirrors the teacher's direct dependency on
// fsnotify for the same hot-reload pattern used elsewhere in the pack.
func Watch(v *viper.Viper, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		cfg := &Config{}
		if err := v.Unmarshal(cfg, viper.DecodeHook(durationHook)); err != nil {
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
}
