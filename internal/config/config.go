// Package config holds the tunables the core consumes (spec.md §6) and the
// viper/yaml wiring that fills them in, following the same
// defaults-then-file-then-env precedence the teacher's
// cmd/bd config layer uses.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of configuration options consumed by the core.
type Config struct {
	// EngineLifeCheckTimeout is how long to wait for a peer's listening
	// probe before treating it as dead.
	EngineLifeCheckTimeout time.Duration
	// DefaultActionTimeout is the per-action wall-clock limit.
	DefaultActionTimeout time.Duration
	// ErrorWaitTime is the grace period after an error before the target
	// becomes eligible for retry.
	ErrorWaitTime time.Duration
	// NumEngineWorkers is the worker pool size per engine.
	NumEngineWorkers int
	// PeriodicInterval is the idle poll interval.
	PeriodicInterval time.Duration

	// MaxMembersPerCluster caps cluster size at CLUSTER_SCALE time.
	MaxMembersPerCluster int
	// MaxClustersPerProject caps the number of clusters a project may own.
	MaxClustersPerProject int
	// MaxNestedClusterDepth caps cluster parent-chain depth.
	MaxNestedClusterDepth int

	// MaxEventsPerCluster is the event-retention ceiling per cluster.
	MaxEventsPerCluster int
	// EventPurgeBatchSize is how many old events are deleted per prune.
	EventPurgeBatchSize int

	// DatabasePath is the path to the SQLite database file.
	DatabasePath string
	// EngineID uniquely names this engine process in the fleet. Generated
	// at startup if empty.
	EngineID string

	// NATSURL is the liveness pub/sub transport address.
	NATSURL string
	// RedisAddr is the liveness TTL-key backend address.
	RedisAddr string
}

const envPrefix = "ENGINECORE"

// defaults mirror spec.md §6's configuration table; every key has a
// concrete zero-downtime-safe default so an engine can boot with no config
// file at all, the same way the teacher's cmd/bd falls back to
// viper.SetDefault values when config.yaml is absent.
func defaults() map[string]any {
	return map[string]any{
		"engine_life_check_timeout": "30s",
		"default_action_timeout":    "10m",
		"error_wait_time":           "15s",
		"num_engine_workers":        4,
		"periodic_interval":         "2s",
		"max_members_per_cluster":   1000,
		"max_clusters_per_project":  100,
		"max_nested_cluster_depth":  3,
		"max_events_per_cluster":    1000,
		"event_purge_batch_size":    100,
		"database_path":             "enginecore.db",
		"nats_url":                  "nats://127.0.0.1:4222",
		"redis_addr":                "127.0.0.1:6379",
	}
}

// Load builds a Config from (in increasing precedence): hardcoded
// defaults, an optional YAML file at configPath, and ENGINECORE_*
// environment variables. A missing configPath is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	for k, val := range defaults() {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config %s: %w", configPath, err)
			}
		}
	}

	cfg := &Config{
		EngineLifeCheckTimeout: v.GetDuration("engine_life_check_timeout"),
		DefaultActionTimeout:   v.GetDuration("default_action_timeout"),
		ErrorWaitTime:          v.GetDuration("error_wait_time"),
		NumEngineWorkers:       v.GetInt("num_engine_workers"),
		PeriodicInterval:       v.GetDuration("periodic_interval"),
		MaxMembersPerCluster:   v.GetInt("max_members_per_cluster"),
		MaxClustersPerProject:  v.GetInt("max_clusters_per_project"),
		MaxNestedClusterDepth:  v.GetInt("max_nested_cluster_depth"),
		MaxEventsPerCluster:    v.GetInt("max_events_per_cluster"),
		EventPurgeBatchSize:    v.GetInt("event_purge_batch_size"),
		DatabasePath:           v.GetString("database_path"),
		EngineID:               v.GetString("engine_id"),
		NATSURL:                v.GetString("nats_url"),
		RedisAddr:              v.GetString("redis_addr"),
	}
	return cfg, nil
}
