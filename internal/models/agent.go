package models

import "time"

// Agent lifecycle statuses. An agent only goes offline via the staleness
// sweep; online/processing are set exclusively by authenticated beacons.
const (
	AgentStatusOnline     = "online"
	AgentStatusProcessing = "processing"
	AgentStatusOffline    = "offline"
)

const (
	DefaultBeaconIntervalSeconds = 60
	MinBeaconIntervalSeconds     = 10
	MaxBeaconIntervalSeconds     = 3600

	// OfflineAfterIntervals is the number of missed beacon intervals after
	// which the staleness sweep marks an agent offline.
	OfflineAfterIntervals = 3
)

type Agent struct {
	ID                    string     `gorm:"primaryKey;column:id" json:"id"`
	Name                  string     `gorm:"column:name" json:"name"`
	PSK                   string     `gorm:"column:psk" json:"-"`
	Status                string     `gorm:"column:status" json:"status"`
	BeaconIntervalSeconds int        `gorm:"column:beacon_interval_seconds" json:"beacon_interval_seconds"`
	LastSeen              *time.Time `gorm:"column:last_seen" json:"last_seen"`
	OSInfo                string     `gorm:"column:os_info" json:"os_info,omitempty"`
	Hostname              string     `gorm:"column:hostname" json:"hostname,omitempty"`
	AgentVersion          string     `gorm:"column:agent_version" json:"agent_version,omitempty"`
	InternalIP            string     `gorm:"column:internal_ip" json:"internal_ip,omitempty"`
	UptimeSeconds         float64    `gorm:"column:uptime_seconds" json:"uptime_seconds,omitempty"`
	Tags                  string     `gorm:"column:tags" json:"tags,omitempty"`
	CreatedAt             time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

func (Agent) TableName() string {
	return "agents"
}

// Stale reports whether the agent has missed enough beacons to be considered
// offline at the given instant. Agents that never beaconed are not stale;
// they simply stay in their initial offline state.
func (a *Agent) Stale(now time.Time) bool {
	if a.LastSeen == nil {
		return false
	}
	interval := a.BeaconIntervalSeconds
	if interval <= 0 {
		interval = DefaultBeaconIntervalSeconds
	}
	horizon := time.Duration(OfflineAfterIntervals*interval) * time.Second
	return now.Sub(*a.LastSeen) > horizon
}
