package repository

import (
	"context"
	"errors"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"gorm.io/gorm"
)

type GormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) CreateAgent(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Create(agent).Error
}

func (r *GormRepository) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&agent).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrUnknownAgent
		}
		return nil, err
	}
	return &agent, nil
}

func (r *GormRepository) ListAgents(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	if err := r.db.WithContext(ctx).Order("created_at").Find(&agents).Error; err != nil {
		return nil, err
	}
	return agents, nil
}

func (r *GormRepository) SaveAgent(ctx context.Context, agent *models.Agent) error {
	return r.db.WithContext(ctx).Save(agent).Error
}

// DeleteAgent removes the agent together with its tasks and telemetry.
func (r *GormRepository) DeleteAgent(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&models.Agent{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return models.ErrUnknownAgent
		}
		if err := tx.Where("agent_id = ?", id).Delete(&models.Task{}).Error; err != nil {
			return err
		}
		return tx.Where("agent_id = ?", id).Delete(&models.TelemetryRecord{}).Error
	})
}

func (r *GormRepository) CreateTask(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *GormRepository) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.ErrUnknownTask
		}
		return nil, err
	}
	return &task, nil
}

func (r *GormRepository) ListTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.WithContext(ctx).Order("created_at desc").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *GormRepository) ListTasksByAgent(ctx context.Context, agentID string) ([]models.Task, error) {
	var tasks []models.Task
	if err := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("created_at desc").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *GormRepository) DequeueTasks(ctx context.Context, agentID string, now time.Time) ([]models.Task, error) {
	var dequeued []models.Task
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var queued []models.Task
		if err := tx.Where("agent_id = ? AND status = ?", agentID, models.TaskStatusQueued).
			Order("created_at").Find(&queued).Error; err != nil {
			return err
		}
		if len(queued) == 0 {
			return nil
		}

		ids := make([]string, 0, len(queued))
		for _, t := range queued {
			ids = append(ids, t.ID)
		}

		// Guard on status in the update so a concurrent dequeue that won the
		// race leaves zero rows for this one to claim.
		res := tx.Model(&models.Task{}).
			Where("id IN ? AND status = ?", ids, models.TaskStatusQueued).
			Updates(map[string]interface{}{
				"status":     models.TaskStatusDispatched,
				"started_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != int64(len(queued)) {
			// Another dispatcher claimed part of the set; return only what
			// this transaction actually transitioned.
			var claimed []models.Task
			if err := tx.Where("id IN ? AND started_at = ?", ids, now).Find(&claimed).Error; err != nil {
				return err
			}
			queued = claimed
		}

		for i := range queued {
			queued[i].Status = models.TaskStatusDispatched
			startedAt := now
			queued[i].StartedAt = &startedAt
		}
		dequeued = queued
		return nil
	})
	if err != nil {
		return nil, err
	}
	return dequeued, nil
}

func (r *GormRepository) ResolveTask(ctx context.Context, result *models.TaskResult, completedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var task models.Task
		if err := tx.Where("id = ?", result.TaskID).First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrUnknownTask
			}
			return err
		}
		if task.Status != models.TaskStatusDispatched {
			return models.ErrStaleResult
		}

		return tx.Model(&models.Task{}).Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"status":       result.Status,
				"output":       result.Output,
				"error_output": result.ErrorOutput,
				"exit_code":    result.ExitCode,
				"completed_at": completedAt,
			}).Error
	})
}

func (r *GormRepository) AppendTelemetry(ctx context.Context, record *models.TelemetryRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *GormRepository) RecentTelemetry(ctx context.Context, agentID string, limit int) ([]models.TelemetryRecord, error) {
	var records []models.TelemetryRecord
	q := r.db.WithContext(ctx).Where("agent_id = ?", agentID).Order("timestamp desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *GormRepository) PurgeTelemetryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.TelemetryRecord{})
	return res.RowsAffected, res.Error
}
