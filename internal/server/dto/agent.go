package dto

import "time"

type CreateAgentRequest struct {
	Name string `json:"name" validate:"required,min=1,max=128"`
	// PSK is optional; a secure one is generated when absent.
	PSK  string   `json:"psk,omitempty" validate:"omitempty,min=8"`
	Tags []string `json:"tags,omitempty" validate:"omitempty,dive,min=1,max=64"`
}

type CreateAgentResponse struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
	// PSK is returned exactly once, at registration.
	PSK string `json:"psk"`
}

type UpdateAgentConfigRequest struct {
	BeaconIntervalSeconds *int  `json:"beacon_interval_seconds,omitempty" validate:"omitempty,min=10,max=3600"`
	CollectSystemMetrics  *bool `json:"collect_system_metrics,omitempty"`
}

type AgentInfo struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Status                string     `json:"status"`
	BeaconIntervalSeconds int        `json:"beacon_interval_seconds"`
	LastSeen              *time.Time `json:"last_seen"`
	OSInfo                string     `json:"os_info,omitempty"`
	Hostname              string     `json:"hostname,omitempty"`
	AgentVersion          string     `json:"agent_version,omitempty"`
	InternalIP            string     `json:"internal_ip,omitempty"`
	Tags                  []string   `json:"tags,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

type SweepResponse struct {
	OfflineCount int `json:"offline_count"`
}
