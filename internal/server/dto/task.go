package dto

type CreateTaskRequest struct {
	AgentID        string                 `json:"agent_id" validate:"required,uuid4"`
	Type           string                 `json:"type" validate:"required,oneof=execute_command collect_process_list collect_network_connections collect_disk_usage"`
	Payload        map[string]interface{} `json:"payload"`
	TimeoutSeconds int                    `json:"timeout_seconds,omitempty" validate:"omitempty,min=1,max=3600"`
	CreatedBy      string                 `json:"created_by,omitempty"`
}

type CreateTaskResponse struct {
	TaskID string `json:"task_id"`
}
