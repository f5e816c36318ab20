// Package config loads node configuration from the environment, with
// command-line flags layered on top by the caller.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds everything a node needs to start.
type Config struct {
	AuthorID string `env:"MESHLINK_AUTHOR_ID"`
	Alias    string `env:"MESHLINK_ALIAS"`
	MeshID   string `env:"MESHLINK_MESH_ID"`

	DataDir  string   `env:"MESHLINK_DATA_DIR" envDefault:"./meshlink-data"`
	APIAddr  string   `env:"MESHLINK_API_ADDR" envDefault:":8080"`
	Channels []string `env:"MESHLINK_CHANNELS" envSeparator:","`

	// Online path. Local mode replaces the libp2p gateway with an
	// in-process stub, for development and tests.
	LocalMode      bool     `env:"MESHLINK_LOCAL_MODE"`
	P2PPort        int      `env:"MESHLINK_P2P_PORT" envDefault:"9000"`
	GatewayAddr    string   `env:"MESHLINK_GATEWAY_ADDR"`
	GatewayPeer    string   `env:"MESHLINK_GATEWAY_PEER"`
	BootstrapPeers []string `env:"MESHLINK_BOOTSTRAP_PEERS" envSeparator:","`

	RetryIntervalMs      int `env:"MESHLINK_RETRY_INTERVAL_MS"`
	AssemblyTimeoutSec   int `env:"MESHLINK_ASSEMBLY_TIMEOUT_SEC"`
	HeartbeatIntervalSec int `env:"MESHLINK_HEARTBEAT_INTERVAL_SEC"`
	QueueLimit           int `env:"MESHLINK_QUEUE_LIMIT"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// Validate checks required settings for a runnable node.
func (c *Config) Validate() error {
	if c.AuthorID == "" {
		return fmt.Errorf("author id is required (MESHLINK_AUTHOR_ID or -author)")
	}
	if !c.LocalMode && c.GatewayAddr == "" && c.GatewayPeer == "" {
		return fmt.Errorf("gateway address or peer id is required unless running in local mode")
	}
	return nil
}
