// Package config holds the process-wide Config value. A Config is
// constructed once at startup (by cmd/master, cmd/worker, cmd/agent) and
// passed down explicitly, per the "explicit Application value, not a
// lazy static" guidance the teacher's own cmn.GCO-style global would
// otherwise encourage.
package config

import (
	"os"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// TLS holds the optional transport-security material for a gRPC server
// (spec.md §6 "Server defaults").
type TLS struct {
	Enabled      bool   `json:"enabled"`
	Certificate  string `json:"certificate"`
	PrivateKey   string `json:"private_key"`
	CustomCA     string `json:"custom_ca"`
	VerifyClient bool   `json:"verify_client"`
}

// Config is the full set of tunables named or implied by spec.md §5-§7.
type Config struct {
	// Network
	MasterAddress string `json:"master_address"`
	WorkerAddress string `json:"worker_address"`
	AgentAddress  string `json:"agent_address"`
	MaxMsgSize    int    `json:"max_msg_size"`    // default 100 MiB
	MaxMsgSizeCap int    `json:"max_msg_size_cap"` // hard cap 512 MiB
	TLS           TLS    `json:"tls"`

	// Registration / lifecycle (spec.md §5 Cancellation & timeouts)
	RegisterRetries  int           `json:"register_retries"`   // 60
	RegisterInterval time.Duration `json:"register_interval"`  // 1s
	ExitDeadline     time.Duration `json:"exit_deadline"`      // 1s
	LatchPollEvery   time.Duration `json:"latch_poll_every"`   // <=100ms

	// Worker pipeline (spec.md §4.E)
	PrePostPoolSize int `json:"pre_post_pool_size"` // default 4

	// Distributed coordinator (spec.md §4.G)
	AgentRankTimeout   time.Duration `json:"agent_rank_timeout"`   // 10s
	AgentPollInterval  time.Duration `json:"agent_poll_interval"`  // 100ms
	WaitAgentsTimeout  time.Duration `json:"wait_agents_timeout"`  // caller-supplied default

	// Watchdog (spec.md §9 Open Questions: cadence/threshold exposed as config)
	HeartbeatInterval  time.Duration `json:"heartbeat_interval"`
	HeartbeatThreshold int           `json:"heartbeat_threshold"` // missed pings before latch fires

	// Batcher (spec.md §4.F)
	TensorCompressThreshold int `json:"tensor_compress_threshold"` // bytes
}

// Default returns the configuration the source's hard-coded constants
// imply (spec.md §5, §6).
func Default() *Config {
	return &Config{
		MaxMsgSize:              100 << 20,
		MaxMsgSizeCap:           512 << 20,
		RegisterRetries:         60,
		RegisterInterval:        time.Second,
		ExitDeadline:            time.Second,
		LatchPollEvery:          100 * time.Millisecond,
		PrePostPoolSize:         4,
		AgentRankTimeout:        10 * time.Second,
		AgentPollInterval:       100 * time.Millisecond,
		WaitAgentsTimeout:       30 * time.Second,
		HeartbeatInterval:       2 * time.Second,
		HeartbeatThreshold:      3,
		TensorCompressThreshold: 64 << 10,
	}
}

// Load reads a Config as JSON from path, falling back to Default for any
// zero-valued field left unset (mirrors the teacher's config packages
// which always seed from compiled-in defaults before a file overlay).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
