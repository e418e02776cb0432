package agent

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/arclight-c2/arclight/internal/models"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent_config.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	path := writeConfigFile(t, `{"agent_id":"a-1","psk":"secret","server_url":"http://localhost:8080"}`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.BeaconIntervalSeconds != models.DefaultBeaconIntervalSeconds {
		t.Fatalf("expected default interval, got %d", cfg.BeaconIntervalSeconds)
	}
}

func TestLoadConfigRequiresIdentity(t *testing.T) {
	path := writeConfigFile(t, `{"server_url":"http://localhost:8080"}`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for missing identity")
	}
}

func TestLoadConfigRejectsOutOfRangeInterval(t *testing.T) {
	path := writeConfigFile(t, `{"agent_id":"a-1","psk":"secret","server_url":"http://x","beacon_interval_seconds":5}`)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected error for interval below minimum")
	}
}

func TestApplyPersistsUpdate(t *testing.T) {
	path := writeConfigFile(t, `{"agent_id":"a-1","psk":"secret","server_url":"http://x"}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	interval := 120
	metrics := false
	if err := cfg.Apply(&models.ConfigUpdate{
		BeaconIntervalSeconds: &interval,
		CollectSystemMetrics:  &metrics,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Interval() != 120 {
		t.Fatalf("expected interval 120, got %d", cfg.Interval())
	}
	if cfg.MetricsEnabled() {
		t.Fatalf("expected metrics disabled")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read config back: %v", err)
	}
	var persisted map[string]interface{}
	if err := json.Unmarshal(raw, &persisted); err != nil {
		t.Fatalf("failed to parse persisted config: %v", err)
	}
	if persisted["beacon_interval_seconds"].(float64) != 120 {
		t.Fatalf("expected persisted interval 120, got %v", persisted["beacon_interval_seconds"])
	}
}

func TestApplyRejectsOutOfRangeInterval(t *testing.T) {
	path := writeConfigFile(t, `{"agent_id":"a-1","psk":"secret","server_url":"http://x"}`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, bad := range []int{5, 4000} {
		v := bad
		if err := cfg.Apply(&models.ConfigUpdate{BeaconIntervalSeconds: &v}); err == nil {
			t.Fatalf("expected rejection for interval %d", bad)
		}
	}
	if cfg.Interval() != models.DefaultBeaconIntervalSeconds {
		t.Fatalf("expected interval unchanged, got %d", cfg.Interval())
	}
}
