package models

import "time"

// Telemetry record kinds.
const (
	TelemetryKindSystemMetrics = "system_metrics"
	TelemetryKindLog           = "log"
	TelemetryKindBasic         = "basic"
)

// DefaultTelemetryRetention is how long telemetry rows are kept in durable
// storage before the retention sweep purges them.
const DefaultTelemetryRetention = 7 * 24 * time.Hour

// TelemetryRecord is an append-only telemetry row. Payload is a JSON blob
// whose shape depends on Kind.
type TelemetryRecord struct {
	ID        int64     `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	AgentID   string    `gorm:"column:agent_id;index" json:"agent_id"`
	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	Kind      string    `gorm:"column:kind" json:"kind"`
	Payload   string    `gorm:"column:payload" json:"payload"`
}

func (TelemetryRecord) TableName() string {
	return "telemetry_records"
}

// ConfigUpdate is a sparse configuration change delivered to an agent via its
// single-slot mailbox. Nil fields are absent from the update.
type ConfigUpdate struct {
	BeaconIntervalSeconds *int  `json:"beacon_interval_seconds,omitempty"`
	CollectSystemMetrics  *bool `json:"collect_system_metrics,omitempty"`
}

// Empty reports whether the update carries no recognized fields.
func (u *ConfigUpdate) Empty() bool {
	return u == nil || (u.BeaconIntervalSeconds == nil && u.CollectSystemMetrics == nil)
}
