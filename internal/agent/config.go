package agent

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/arclight-c2/arclight/internal/models"
)

// Config is the agent's identity and behavior, persisted as a JSON file so
// server-pushed changes survive restarts.
type Config struct {
	AgentID               string `json:"agent_id"`
	PSK                   string `json:"psk"`
	ServerURL             string `json:"server_url"`
	BeaconIntervalSeconds int    `json:"beacon_interval_seconds"`
	CollectSystemMetrics  bool   `json:"collect_system_metrics"`

	mu   sync.Mutex
	path string
}

// LoadConfig reads the agent configuration file and fills in defaults for
// optional fields. AgentID, PSK and ServerURL must be provisioned.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent config: %w", err)
	}

	cfg := &Config{path: path}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse agent config: %w", err)
	}

	if cfg.AgentID == "" || cfg.PSK == "" || cfg.ServerURL == "" {
		return nil, fmt.Errorf("agent config requires agent_id, psk and server_url")
	}
	if cfg.BeaconIntervalSeconds == 0 {
		cfg.BeaconIntervalSeconds = models.DefaultBeaconIntervalSeconds
	}
	if cfg.BeaconIntervalSeconds < models.MinBeaconIntervalSeconds ||
		cfg.BeaconIntervalSeconds > models.MaxBeaconIntervalSeconds {
		return nil, fmt.Errorf("beacon_interval_seconds %d out of range", cfg.BeaconIntervalSeconds)
	}

	return cfg, nil
}

// Interval returns the current beacon interval in seconds.
func (c *Config) Interval() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.BeaconIntervalSeconds
}

// MetricsEnabled reports whether system metrics collection is on.
func (c *Config) MetricsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.CollectSystemMetrics
}

// Apply validates and applies a server-pushed configuration update, then
// persists the file. Unknown or out-of-range fields are rejected without
// touching the rest of the config.
func (c *Config) Apply(update *models.ConfigUpdate) error {
	if update.Empty() {
		return nil
	}

	if update.BeaconIntervalSeconds != nil {
		v := *update.BeaconIntervalSeconds
		if v < models.MinBeaconIntervalSeconds || v > models.MaxBeaconIntervalSeconds {
			return fmt.Errorf("rejected beacon interval %d: out of range", v)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if update.BeaconIntervalSeconds != nil {
		c.BeaconIntervalSeconds = *update.BeaconIntervalSeconds
	}
	if update.CollectSystemMetrics != nil {
		c.CollectSystemMetrics = *update.CollectSystemMetrics
	}
	return c.save()
}

// save writes the config atomically via a temp file rename. Caller holds mu.
func (c *Config) save() error {
	if c.path == "" {
		return nil
	}

	raw, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode agent config: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write agent config: %w", err)
	}
	if err := os.Rename(tmp, filepath.Clean(c.path)); err != nil {
		return fmt.Errorf("failed to replace agent config: %w", err)
	}
	return nil
}
