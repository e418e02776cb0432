package models

import "time"

// Task statuses form a strictly monotonic lifecycle:
// queued -> dispatched -> (completed | failed | timed_out).
const (
	TaskStatusQueued     = "queued"
	TaskStatusDispatched = "dispatched"
	TaskStatusCompleted  = "completed"
	TaskStatusFailed     = "failed"
	TaskStatusTimedOut   = "timed_out"
)

// Recognized task types. execute_command runs a shell command on the agent;
// the collect_* types are structured telemetry pulls.
const (
	TaskTypeExecuteCommand     = "execute_command"
	TaskTypeCollectProcesses   = "collect_process_list"
	TaskTypeCollectConnections = "collect_network_connections"
	TaskTypeCollectDiskUsage   = "collect_disk_usage"
)

const (
	DefaultTaskTimeoutSeconds = 300
	MinTaskTimeoutSeconds     = 1
	MaxTaskTimeoutSeconds     = 3600
)

type Task struct {
	ID             string     `gorm:"primaryKey;column:id" json:"id"`
	AgentID        string     `gorm:"column:agent_id;index" json:"agent_id"`
	Type           string     `gorm:"column:type" json:"type"`
	Payload        string     `gorm:"column:payload" json:"payload"`
	TimeoutSeconds int        `gorm:"column:timeout_seconds" json:"timeout_seconds"`
	Status         string     `gorm:"column:status;index" json:"status"`
	Output         string     `gorm:"column:output" json:"output,omitempty"`
	ErrorOutput    string     `gorm:"column:error_output" json:"error_output,omitempty"`
	ExitCode       *int       `gorm:"column:exit_code" json:"exit_code,omitempty"`
	CreatedBy      string     `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	StartedAt      *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt    *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
}

func (Task) TableName() string {
	return "tasks"
}

// TaskResult is the wire shape an agent reports for a finished task. It is
// consumed exactly once to close the matching Task.
type TaskResult struct {
	TaskID      string `json:"task_id"`
	Status      string `json:"status"`
	Output      string `json:"output,omitempty"`
	ErrorOutput string `json:"error_output,omitempty"`
	ExitCode    *int   `json:"exit_code,omitempty"`
}

// ValidTaskType reports whether t is one of the recognized task types.
func ValidTaskType(t string) bool {
	switch t {
	case TaskTypeExecuteCommand, TaskTypeCollectProcesses,
		TaskTypeCollectConnections, TaskTypeCollectDiskUsage:
		return true
	}
	return false
}

// TerminalTaskStatus reports whether s closes a task.
func TerminalTaskStatus(s string) bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusTimedOut:
		return true
	}
	return false
}
