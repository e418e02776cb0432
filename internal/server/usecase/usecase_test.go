package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/internal/server/dto"
	"github.com/arclight-c2/arclight/internal/server/mailbox"
	"github.com/arclight-c2/arclight/internal/server/repository"
	"github.com/arclight-c2/arclight/pkg/database"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/google/uuid"
)

func newTestUseCase(t *testing.T) *UseCase {
	t.Helper()
	db, err := database.NewSQLiteDB(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	log, err := logger.NewLoggerFromEnv("test")
	if err != nil {
		t.Fatalf("failed to build logger: %v", err)
	}
	return NewUseCase(Opts{
		Repo:    repository.NewRepository(db),
		Mailbox: mailbox.New(),
		Logger:  log,
	})
}

func intPtr(v int) *int { return &v }

func TestRegisterAgentGeneratesPSK(t *testing.T) {
	uc := newTestUseCase(t)

	agent, err := uc.RegisterAgent(context.Background(), "alpha", "", []string{"lab", "linux"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agent.PSK == "" || len(agent.PSK) != 32 {
		t.Fatalf("expected generated 32-char PSK, got %q", agent.PSK)
	}
	if agent.Status != models.AgentStatusOffline {
		t.Fatalf("expected initial offline status, got %s", agent.Status)
	}
	if agent.BeaconIntervalSeconds != models.DefaultBeaconIntervalSeconds {
		t.Fatalf("expected default interval, got %d", agent.BeaconIntervalSeconds)
	}
	if agent.Tags != `["lab","linux"]` {
		t.Fatalf("expected encoded tags, got %q", agent.Tags)
	}
}

func TestEnqueueTaskUnknownAgent(t *testing.T) {
	uc := newTestUseCase(t)

	_, err := uc.EnqueueTask(context.Background(), &dto.CreateTaskRequest{
		AgentID: uuid.NewString(),
		Type:    models.TaskTypeExecuteCommand,
	})
	if !errors.Is(err, models.ErrUnknownAgent) {
		t.Fatalf("expected ErrUnknownAgent, got %v", err)
	}
}

func TestBeaconDispatchesQueuedTaskExactlyOnce(t *testing.T) {
	uc := newTestUseCase(t)
	ctx := context.Background()

	agent, _ := uc.RegisterAgent(ctx, "alpha", "secret", nil)
	task, err := uc.EnqueueTask(ctx, &dto.CreateTaskRequest{
		AgentID:        agent.ID,
		Type:           models.TaskTypeExecuteCommand,
		Payload:        map[string]interface{}{"command": "echo hi"},
		TimeoutSeconds: 30,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.NewTasks) != 1 {
		t.Fatalf("expected 1 new task, got %d", len(resp.NewTasks))
	}
	if resp.NewTasks[0].TaskID != task.ID {
		t.Fatalf("expected task %s, got %s", task.ID, resp.NewTasks[0].TaskID)
	}
	if resp.NewTasks[0].Payload["command"] != "echo hi" {
		t.Fatalf("expected payload round-trip, got %v", resp.NewTasks[0].Payload)
	}

	stored, _ := uc.GetTask(ctx, task.ID)
	if stored.Status != models.TaskStatusDispatched {
		t.Fatalf("expected dispatched, got %s", stored.Status)
	}

	// Next beacon returns no work.
	resp, err = uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.NewTasks) != 0 {
		t.Fatalf("expected no tasks on second beacon, got %d", len(resp.NewTasks))
	}
}

func TestConcurrentBeaconsDispatchEachTaskOnce(t *testing.T) {
	uc := newTestUseCase(t)
	ctx := context.Background()

	agent, _ := uc.RegisterAgent(ctx, "alpha", "secret", nil)
	const taskCount = 5
	for i := 0; i < taskCount; i++ {
		if _, err := uc.EnqueueTask(ctx, &dto.CreateTaskRequest{
			AgentID: agent.ID,
			Type:    models.TaskTypeCollectDiskUsage,
		}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	const beacons = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]int)

	for i := 0; i < beacons; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline})
			if err != nil {
				t.Errorf("beacon failed: %v", err)
				return
			}
			mu.Lock()
			for _, task := range resp.NewTasks {
				seen[task.TaskID]++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != taskCount {
		t.Fatalf("expected %d distinct tasks dispatched, got %d", taskCount, len(seen))
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("task %s dispatched %d times", id, n)
		}
	}
}

func TestBeaconResolvesResultsAndIsolatesBadOnes(t *testing.T) {
	uc := newTestUseCase(t)
	ctx := context.Background()

	agent, _ := uc.RegisterAgent(ctx, "alpha", "secret", nil)
	task, _ := uc.EnqueueTask(ctx, &dto.CreateTaskRequest{
		AgentID: agent.ID,
		Type:    models.TaskTypeExecuteCommand,
		Payload: map[string]interface{}{"command": "echo hi"},
	})
	if _, err := uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exitCode := 0
	resp, err := uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{
		Status: models.AgentStatusOnline,
		TaskResults: []models.TaskResult{
			{TaskID: "not-a-uuid", Status: models.TaskStatusCompleted},
			{TaskID: uuid.NewString(), Status: models.TaskStatusCompleted},
			{TaskID: task.ID, Status: models.TaskStatusCompleted, Output: "hi\n", ExitCode: &exitCode},
		},
	})
	if err != nil {
		t.Fatalf("expected best-effort beacon, got %v", err)
	}
	if resp == nil {
		t.Fatalf("expected a response despite bad results")
	}

	stored, _ := uc.GetTask(ctx, task.ID)
	if stored.Status != models.TaskStatusCompleted {
		t.Fatalf("expected completed, got %s", stored.Status)
	}
	if stored.Output != "hi\n" {
		t.Fatalf("expected output persisted, got %q", stored.Output)
	}
}

func TestBeaconDrainsMailboxOnce(t *testing.T) {
	uc := newTestUseCase(t)
	ctx := context.Background()

	agent, _ := uc.RegisterAgent(ctx, "alpha", "secret", nil)
	if err := uc.UpdateAgentConfig(ctx, agent.ID, &dto.UpdateAgentConfigRequest{
		BeaconIntervalSeconds: intPtr(120),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ConfigUpdate == nil || resp.ConfigUpdate.BeaconIntervalSeconds == nil {
		t.Fatalf("expected config update in beacon response")
	}
	if *resp.ConfigUpdate.BeaconIntervalSeconds != 120 {
		t.Fatalf("expected interval 120, got %d", *resp.ConfigUpdate.BeaconIntervalSeconds)
	}

	resp, _ = uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline})
	if resp.ConfigUpdate != nil {
		t.Fatalf("expected mailbox drained, got %+v", resp.ConfigUpdate)
	}

	stored, _ := uc.GetAgent(ctx, agent.ID)
	if stored.BeaconIntervalSeconds != 120 {
		t.Fatalf("expected persisted interval 120, got %d", stored.BeaconIntervalSeconds)
	}
}

func TestUpdateAgentConfigRejectsOutOfRangeInterval(t *testing.T) {
	uc := newTestUseCase(t)
	ctx := context.Background()

	agent, _ := uc.RegisterAgent(ctx, "alpha", "secret", nil)

	for _, bad := range []int{5, 4000} {
		err := uc.UpdateAgentConfig(ctx, agent.ID, &dto.UpdateAgentConfigRequest{
			BeaconIntervalSeconds: intPtr(bad),
		})
		if !errors.Is(err, models.ErrValidation) {
			t.Fatalf("expected ErrValidation for %d, got %v", bad, err)
		}
	}

	stored, _ := uc.GetAgent(ctx, agent.ID)
	if stored.BeaconIntervalSeconds != models.DefaultBeaconIntervalSeconds {
		t.Fatalf("expected interval unchanged, got %d", stored.BeaconIntervalSeconds)
	}
	if resp, _ := uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline}); resp.ConfigUpdate != nil {
		t.Fatalf("expected no armed update after rejected changes")
	}
}

func TestSweepOfflineBoundary(t *testing.T) {
	now := time.Now()
	uc := newTestUseCase(t)
	uc.now = func() time.Time { return now }
	ctx := context.Background()

	stale, _ := uc.RegisterAgent(ctx, "stale", "secret", nil)
	fresh, _ := uc.RegisterAgent(ctx, "fresh", "secret", nil)

	// 60s interval: 181s silence is past the 3x horizon, 179s is not.
	staleSeen := now.Add(-181 * time.Second)
	freshSeen := now.Add(-179 * time.Second)
	for _, fixture := range []struct {
		agent *models.Agent
		seen  time.Time
	}{
		{stale, staleSeen},
		{fresh, freshSeen},
	} {
		stored, _ := uc.GetAgent(ctx, fixture.agent.ID)
		stored.Status = models.AgentStatusOnline
		seen := fixture.seen
		stored.LastSeen = &seen
		if err := uc.repo.SaveAgent(ctx, stored); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	count, err := uc.SweepOffline(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 agent marked offline, got %d", count)
	}

	staleStored, _ := uc.GetAgent(ctx, stale.ID)
	if staleStored.Status != models.AgentStatusOffline {
		t.Fatalf("expected stale agent offline, got %s", staleStored.Status)
	}
	freshStored, _ := uc.GetAgent(ctx, fresh.ID)
	if freshStored.Status != models.AgentStatusOnline {
		t.Fatalf("expected fresh agent still online, got %s", freshStored.Status)
	}
}

func TestProcessResultsIsolation(t *testing.T) {
	uc := newTestUseCase(t)
	ctx := context.Background()

	agent, _ := uc.RegisterAgent(ctx, "alpha", "secret", nil)
	task, _ := uc.EnqueueTask(ctx, &dto.CreateTaskRequest{
		AgentID: agent.ID,
		Type:    models.TaskTypeCollectProcesses,
	})
	if _, err := uc.HandleBeacon(ctx, agent.ID, &dto.BeaconRequest{Status: models.AgentStatusOnline}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	processed, skipped := uc.ProcessResults(ctx, agent.ID, []models.TaskResult{
		{TaskID: task.ID, Status: models.TaskStatusFailed, ErrorOutput: "boom"},
		{TaskID: uuid.NewString(), Status: models.TaskStatusCompleted},
	})
	if processed != 1 || skipped != 1 {
		t.Fatalf("expected 1 processed and 1 skipped, got %d/%d", processed, skipped)
	}

	stored, _ := uc.GetTask(ctx, task.ID)
	if stored.Status != models.TaskStatusFailed || stored.ErrorOutput != "boom" {
		t.Fatalf("expected failed with error output, got %+v", stored)
	}
}

func TestRecentTelemetryServesHotWindow(t *testing.T) {
	uc := newTestUseCase(t)
	ctx := context.Background()

	agent, _ := uc.RegisterAgent(ctx, "alpha", "secret", nil)
	for i := 0; i < 3; i++ {
		received := uc.AppendTelemetryBatch(ctx, agent.ID, &dto.TelemetryBatchRequest{
			Timestamp: time.Now(),
			Metrics:   []dto.TelemetryMetric{{Name: "cpu", Value: float64(i)}},
		})
		if received != 1 {
			t.Fatalf("expected 1 received, got %d", received)
		}
	}

	records, err := uc.RecentTelemetry(ctx, agent.ID, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
}
