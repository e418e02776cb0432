package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/pkg/database"
	"github.com/google/uuid"
)

func newTestRepo(t *testing.T) *GormRepository {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewRepository(db)
}

func seedAgent(t *testing.T, repo *GormRepository) *models.Agent {
	t.Helper()
	agent := &models.Agent{
		ID:                    uuid.NewString(),
		Name:                  "test-agent",
		PSK:                   "secret",
		Status:                models.AgentStatusOffline,
		BeaconIntervalSeconds: models.DefaultBeaconIntervalSeconds,
	}
	if err := repo.CreateAgent(context.Background(), agent); err != nil {
		t.Fatalf("failed to create agent: %v", err)
	}
	return agent
}

func seedTask(t *testing.T, repo *GormRepository, agentID string) *models.Task {
	t.Helper()
	task := &models.Task{
		ID:             uuid.NewString(),
		AgentID:        agentID,
		Type:           models.TaskTypeExecuteCommand,
		Payload:        `{"command":"echo hi"}`,
		TimeoutSeconds: 30,
		Status:         models.TaskStatusQueued,
	}
	if err := repo.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("failed to create task: %v", err)
	}
	return task
}

func TestGetAgentUnknown(t *testing.T) {
	repo := newTestRepo(t)

	if _, err := repo.GetAgent(context.Background(), uuid.NewString()); !errors.Is(err, models.ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestDeleteAgentRemovesTasksAndTelemetry(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	agent := seedAgent(t, repo)
	seedTask(t, repo, agent.ID)
	_ = repo.AppendTelemetry(ctx, &models.TelemetryRecord{
		AgentID:   agent.ID,
		Timestamp: time.Now(),
		Kind:      models.TelemetryKindSystemMetrics,
		Payload:   `{}`,
	})

	if err := repo.DeleteAgent(ctx, agent.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := repo.GetAgent(ctx, agent.ID); !errors.Is(err, models.ErrUnknownAgent) {
		t.Fatalf("expected agent gone, got %v", err)
	}
	tasks, _ := repo.ListTasksByAgent(ctx, agent.ID)
	if len(tasks) != 0 {
		t.Fatalf("expected tasks removed, got %d", len(tasks))
	}
	records, _ := repo.RecentTelemetry(ctx, agent.ID, 0)
	if len(records) != 0 {
		t.Fatalf("expected telemetry removed, got %d", len(records))
	}

	if err := repo.DeleteAgent(ctx, agent.ID); !errors.Is(err, models.ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent on second delete, got %v", err)
	}
}

func TestDequeueTasksMarksDispatched(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	agent := seedAgent(t, repo)
	first := seedTask(t, repo, agent.ID)
	second := seedTask(t, repo, agent.ID)

	now := time.Now()
	dequeued, err := repo.DequeueTasks(ctx, agent.ID, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(dequeued) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(dequeued))
	}
	for _, task := range dequeued {
		if task.Status != models.TaskStatusDispatched {
			t.Fatalf("expected dispatched, got %s", task.Status)
		}
		if task.StartedAt == nil {
			t.Fatalf("expected started_at set")
		}
	}

	// Second dequeue finds nothing: tasks are handed out at most once.
	again, err := repo.DequeueTasks(ctx, agent.ID, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty dequeue, got %d", len(again))
	}

	stored, _ := repo.GetTask(ctx, first.ID)
	if stored.Status != models.TaskStatusDispatched {
		t.Fatalf("expected persisted dispatched status, got %s", stored.Status)
	}
	_ = second
}

func TestResolveTaskClosesDispatchedTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	agent := seedAgent(t, repo)
	task := seedTask(t, repo, agent.ID)

	if _, err := repo.DequeueTasks(ctx, agent.ID, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exitCode := 0
	err := repo.ResolveTask(ctx, &models.TaskResult{
		TaskID:   task.ID,
		Status:   models.TaskStatusCompleted,
		Output:   "hi\n",
		ExitCode: &exitCode,
	}, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stored, _ := repo.GetTask(ctx, task.ID)
	if stored.Status != models.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.Output != "hi\n" {
		t.Fatalf("expected output persisted, got %q", stored.Output)
	}
	if stored.ExitCode == nil || *stored.ExitCode != 0 {
		t.Fatalf("expected exit code 0")
	}
	if stored.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}
}

func TestResolveTaskRejectsUnknownAndStale(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	agent := seedAgent(t, repo)
	task := seedTask(t, repo, agent.ID)

	// Unknown task id.
	err := repo.ResolveTask(ctx, &models.TaskResult{TaskID: uuid.NewString(), Status: models.TaskStatusCompleted}, time.Now())
	if !errors.Is(err, models.ErrUnknownTask) {
		t.Fatalf("expected ErrUnknownTask, got %v", err)
	}

	// Still queued: a result for a never-dispatched task is stale.
	err = repo.ResolveTask(ctx, &models.TaskResult{TaskID: task.ID, Status: models.TaskStatusCompleted}, time.Now())
	if !errors.Is(err, models.ErrStaleResult) {
		t.Fatalf("expected ErrStaleResult for queued task, got %v", err)
	}

	if _, err := repo.DequeueTasks(ctx, agent.ID, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := repo.ResolveTask(ctx, &models.TaskResult{TaskID: task.ID, Status: models.TaskStatusCompleted, Output: "first"}, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Duplicate result must not clobber the terminal fields.
	err = repo.ResolveTask(ctx, &models.TaskResult{TaskID: task.ID, Status: models.TaskStatusFailed, Output: "second"}, time.Now())
	if !errors.Is(err, models.ErrStaleResult) {
		t.Fatalf("expected ErrStaleResult for terminal task, got %v", err)
	}
	stored, _ := repo.GetTask(ctx, task.ID)
	if stored.Output != "first" || stored.Status != models.TaskStatusCompleted {
		t.Fatalf("terminal fields were clobbered: %+v", stored)
	}
}

func TestPurgeTelemetryBefore(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	agent := seedAgent(t, repo)

	old := time.Now().Add(-8 * 24 * time.Hour)
	fresh := time.Now()
	for _, ts := range []time.Time{old, fresh} {
		if err := repo.AppendTelemetry(ctx, &models.TelemetryRecord{
			AgentID:   agent.ID,
			Timestamp: ts,
			Kind:      models.TelemetryKindSystemMetrics,
			Payload:   `{"cpu_percent":1}`,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	purged, err := repo.PurgeTelemetryBefore(ctx, time.Now().Add(-models.DefaultTelemetryRetention))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged row, got %d", purged)
	}

	records, _ := repo.RecentTelemetry(ctx, agent.ID, 0)
	if len(records) != 1 {
		t.Fatalf("expected 1 remaining record, got %d", len(records))
	}
}
