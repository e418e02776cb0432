package dto

import "github.com/arclight-c2/arclight/internal/models"

// BasicTelemetry mirrors the lightweight host snapshot an agent attaches to
// every beacon.
type BasicTelemetry struct {
	OSInfo       string   `json:"os_info,omitempty"`
	Hostname     string   `json:"hostname,omitempty"`
	AgentVersion string   `json:"agent_version,omitempty"`
	InternalIPs  []string `json:"internal_ips,omitempty"`
	Timestamp    float64  `json:"timestamp,omitempty"`
	Uptime       float64  `json:"uptime,omitempty"`
}

// SystemMetrics is the optional performance sample carried by a beacon.
type SystemMetrics struct {
	Timestamp          float64 `json:"timestamp,omitempty"`
	CPUPercent         float64 `json:"cpu_percent,omitempty"`
	MemoryTotal        uint64  `json:"memory_total,omitempty"`
	MemoryUsed         uint64  `json:"memory_used,omitempty"`
	MemoryPercent      float64 `json:"memory_percent,omitempty"`
	DiskTotal          uint64  `json:"disk_total,omitempty"`
	DiskUsed           uint64  `json:"disk_used,omitempty"`
	DiskPercent        float64 `json:"disk_percent,omitempty"`
	NetworkBytesSent   uint64  `json:"network_bytes_sent,omitempty"`
	NetworkBytesRecv   uint64  `json:"network_bytes_recv,omitempty"`
	NetworkPacketsSent uint64  `json:"network_packets_sent,omitempty"`
	NetworkPacketsRecv uint64  `json:"network_packets_recv,omitempty"`
}

type BeaconRequest struct {
	Status         string              `json:"status" validate:"required,oneof=online processing"`
	BasicTelemetry *BasicTelemetry     `json:"basic_telemetry,omitempty"`
	SystemMetrics  *SystemMetrics      `json:"system_metrics,omitempty"`
	TaskResults    []models.TaskResult `json:"task_results,omitempty"`
}

// TaskInstruction is the wire shape of a dispatched task inside a beacon
// response. Payload is the decoded key-value document.
type TaskInstruction struct {
	TaskID         string                 `json:"task_id"`
	Type           string                 `json:"type"`
	Payload        map[string]interface{} `json:"payload"`
	TimeoutSeconds int                    `json:"timeout_seconds"`
}

type BeaconResponse struct {
	NewTasks     []TaskInstruction    `json:"new_tasks"`
	ConfigUpdate *models.ConfigUpdate `json:"config_update,omitempty"`
}
