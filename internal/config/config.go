package config

import (
	"os"
	"strconv"
	"time"
)

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type ServerConfig struct {
	ServerAddr    string
	DatabasePath  string
	AdminUsername string
	AdminPassword string

	// Sweep schedules
	StalenessSweepInterval time.Duration
	RetentionSweepInterval time.Duration
	TelemetryRetention     time.Duration

	// Hot in-memory telemetry entries kept per agent
	TelemetryHotLimit int

	// Optional; nil disables event publishing
	Redis *RedisConfig
}

type AgentProcessConfig struct {
	ConfigPath     string
	RequestTimeout time.Duration

	// Startup connectivity probe retry configuration
	ProbeMaxRetries     int
	ProbeInitialBackoff time.Duration
	ProbeMaxBackoff     time.Duration
	ProbeMultiplier     float64
}

// LoadServerConfig reads server config from environment or returns defaults
func LoadServerConfig() (*ServerConfig, error) {
	cfg := &ServerConfig{
		ServerAddr:             envOrDefault("SERVER_ADDR", ":8080"),
		DatabasePath:           envOrDefault("DATABASE_PATH", "./data/arclight.db"),
		AdminUsername:          envOrDefault("ADMIN_USER", "admin"),
		AdminPassword:          envOrDefault("ADMIN_PASSWORD", "password"),
		StalenessSweepInterval: envSeconds("STALENESS_SWEEP_INTERVAL", 30*time.Second),
		RetentionSweepInterval: envSeconds("RETENTION_SWEEP_INTERVAL", time.Hour),
		TelemetryRetention:     envSeconds("TELEMETRY_RETENTION", 7*24*time.Hour),
		TelemetryHotLimit:      envInt("TELEMETRY_HOT_LIMIT", 100),
	}

	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis = &RedisConfig{
			Host:     host,
			Port:     envInt("REDIS_PORT", 6379),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       envInt("REDIS_DB", 0),
		}
	}

	return cfg, nil
}

// LoadAgentProcessConfig reads agent process config from environment or returns defaults
func LoadAgentProcessConfig() (*AgentProcessConfig, error) {
	multiplier := 2.0
	if v := os.Getenv("PROBE_BACKOFF_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			multiplier = f
		}
	}

	return &AgentProcessConfig{
		ConfigPath:          envOrDefault("AGENT_CONFIG_PATH", "./agent_config.json"),
		RequestTimeout:      envSeconds("REQUEST_TIMEOUT", 30*time.Second),
		ProbeMaxRetries:     envInt("PROBE_MAX_RETRIES", 5),
		ProbeInitialBackoff: envSeconds("PROBE_INITIAL_BACKOFF", time.Second),
		ProbeMaxBackoff:     envSeconds("PROBE_MAX_BACKOFF", 30*time.Second),
		ProbeMultiplier:     multiplier,
	}, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envSeconds(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return def
}
