package repository

import (
	"context"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
)

// Repository is the storage contract the usecase layer depends on. The core
// logic is storage-agnostic; the gorm/sqlite implementation below is the
// default backing.
type Repository interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgents(ctx context.Context) ([]models.Agent, error)
	SaveAgent(ctx context.Context, agent *models.Agent) error
	DeleteAgent(ctx context.Context, id string) error

	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	ListTasks(ctx context.Context) ([]models.Task, error)
	ListTasksByAgent(ctx context.Context, agentID string) ([]models.Task, error)

	// DequeueTasks atomically returns every queued task for the agent and
	// marks each one dispatched with the given start timestamp. A task is
	// never handed out twice across concurrent callers.
	DequeueTasks(ctx context.Context, agentID string, now time.Time) ([]models.Task, error)

	// ResolveTask closes a dispatched task with its terminal result. Returns
	// models.ErrUnknownTask when the task does not exist and
	// models.ErrStaleResult when the task is not in the dispatched state, so
	// late or duplicate results never clobber terminal fields.
	ResolveTask(ctx context.Context, result *models.TaskResult, completedAt time.Time) error

	AppendTelemetry(ctx context.Context, record *models.TelemetryRecord) error
	RecentTelemetry(ctx context.Context, agentID string, limit int) ([]models.TelemetryRecord, error)
	PurgeTelemetryBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
