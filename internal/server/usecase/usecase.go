package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/internal/server/dto"
	"github.com/arclight-c2/arclight/internal/server/mailbox"
	"github.com/arclight-c2/arclight/internal/server/repository"
	authentication "github.com/arclight-c2/arclight/pkg/auth"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/pubsub"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventsChannel is the redis channel operator events are published on.
const EventsChannel = "arclight.events"

const defaultHotLimit = 100

type Opts struct {
	Repo     repository.Repository
	Mailbox  *mailbox.Mailbox
	Logger   *logger.CanonicalLogger
	Pub      pubsub.Publisher // nil disables event publishing
	HotLimit int              // in-memory telemetry entries per agent

	// Retention horizon for the telemetry purge sweep.
	TelemetryRetention time.Duration

	// Now is stubbed in tests; defaults to time.Now.
	Now func() time.Time
}

type UseCase struct {
	repo      repository.Repository
	mailbox   *mailbox.Mailbox
	logger    *logger.CanonicalLogger
	pub       pubsub.Publisher
	hotLimit  int
	retention time.Duration
	now       func() time.Time

	// Per-agent mutual exclusion. Beacons from different agents proceed in
	// parallel; the registry record, task queue and mailbox slot of a single
	// agent are only ever touched under its lock.
	locks sync.Map // agent id -> *sync.Mutex

	hotMu sync.RWMutex
	hot   map[string][]models.TelemetryRecord
}

func NewUseCase(opts Opts) *UseCase {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HotLimit <= 0 {
		opts.HotLimit = defaultHotLimit
	}
	if opts.TelemetryRetention <= 0 {
		opts.TelemetryRetention = models.DefaultTelemetryRetention
	}
	return &UseCase{
		repo:      opts.Repo,
		mailbox:   opts.Mailbox,
		logger:    opts.Logger,
		pub:       opts.Pub,
		hotLimit:  opts.HotLimit,
		retention: opts.TelemetryRetention,
		now:       opts.Now,
		hot:       make(map[string][]models.TelemetryRecord),
	}
}

func (uc *UseCase) lockAgent(agentID string) func() {
	v, _ := uc.locks.LoadOrStore(agentID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Event is the JSON payload published on EventsChannel. Publishing is
// best-effort: a redis outage never fails the request that triggered it.
type Event struct {
	Type    string    `json:"type"`
	AgentID string    `json:"agent_id,omitempty"`
	TaskID  string    `json:"task_id,omitempty"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

func (uc *UseCase) publish(ctx context.Context, ev Event) {
	if uc.pub == nil {
		return
	}
	ev.At = uc.now()
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := uc.pub.Publish(ctx, EventsChannel, string(payload)); err != nil {
		uc.logger.WithError(err).Debug("event publish failed", zap.String("event_type", ev.Type))
	}
}

// RegisterAgent creates a new agent identity. When psk is empty a secure one
// is generated. The initial status is offline until the first beacon.
func (uc *UseCase) RegisterAgent(ctx context.Context, name, psk string, tags []string) (*models.Agent, error) {
	if psk == "" {
		generated, err := authentication.GeneratePSK(32)
		if err != nil {
			return nil, err
		}
		psk = generated
	}

	encodedTags := ""
	if len(tags) > 0 {
		raw, err := json.Marshal(tags)
		if err != nil {
			return nil, err
		}
		encodedTags = string(raw)
	}

	agent := &models.Agent{
		ID:                    uuid.NewString(),
		Name:                  name,
		PSK:                   psk,
		Status:                models.AgentStatusOffline,
		BeaconIntervalSeconds: models.DefaultBeaconIntervalSeconds,
		Tags:                  encodedTags,
	}
	if err := uc.repo.CreateAgent(ctx, agent); err != nil {
		return nil, err
	}

	uc.logger.WithAgentID(agent.ID).Info("agent registered", zap.String("name", name))
	uc.publish(ctx, Event{Type: "agent.registered", AgentID: agent.ID})
	return agent, nil
}

// HandleBeacon runs one beacon cycle for a verified agent: registry update,
// telemetry append, per-result task closing, atomic dequeue of pending work
// and mailbox drain. Per-item failures are isolated; the agent always gets a
// best-effort response.
func (uc *UseCase) HandleBeacon(ctx context.Context, agentID string, req *dto.BeaconRequest) (*dto.BeaconResponse, error) {
	unlock := uc.lockAgent(agentID)
	defer unlock()

	now := uc.now()

	agent, err := uc.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	previousStatus := agent.Status
	agent.Status = req.Status
	agent.LastSeen = &now
	if bt := req.BasicTelemetry; bt != nil {
		if bt.OSInfo != "" {
			agent.OSInfo = bt.OSInfo
		}
		if bt.Hostname != "" {
			agent.Hostname = bt.Hostname
		}
		if bt.AgentVersion != "" {
			agent.AgentVersion = bt.AgentVersion
		}
		if len(bt.InternalIPs) > 0 {
			agent.InternalIP = bt.InternalIPs[0]
		}
		if bt.Uptime > 0 {
			agent.UptimeSeconds = bt.Uptime
		}
	}
	if err := uc.repo.SaveAgent(ctx, agent); err != nil {
		return nil, err
	}
	if previousStatus != agent.Status {
		uc.publish(ctx, Event{Type: "agent.status", AgentID: agentID, Status: agent.Status})
	}

	if req.SystemMetrics != nil {
		if err := uc.appendMetrics(ctx, agentID, req.SystemMetrics, now); err != nil {
			// Telemetry loss must not fail the beacon.
			uc.logger.WithAgentID(agentID).WithError(err).Error("failed to store system metrics")
		}
	}

	processed, skipped := uc.resolveResults(ctx, agentID, req.TaskResults)
	logger.AddToContext(ctx,
		zap.Int(logger.FieldResultCount, processed),
		zap.Int(logger.FieldSkippedCount, skipped),
	)

	dequeued, err := uc.repo.DequeueTasks(ctx, agentID, now)
	if err != nil {
		// Return an empty work list rather than failing the whole beacon;
		// the agent keeps beaconing and the tasks stay queued.
		uc.logger.WithAgentID(agentID).WithError(err).Error("failed to dequeue tasks")
		dequeued = nil
	}

	instructions := make([]dto.TaskInstruction, 0, len(dequeued))
	for _, task := range dequeued {
		instructions = append(instructions, taskInstruction(task))
		uc.publish(ctx, Event{Type: "task.dispatched", AgentID: agentID, TaskID: task.ID})
	}
	logger.AddToContext(ctx, zap.Int(logger.FieldTaskCount, len(instructions)))

	update := uc.mailbox.Drain(agentID)

	return &dto.BeaconResponse{
		NewTasks:     instructions,
		ConfigUpdate: update,
	}, nil
}

func taskInstruction(task models.Task) dto.TaskInstruction {
	payload := map[string]interface{}{}
	if task.Payload != "" {
		// Payload was validated at enqueue time; a decode failure here means
		// storage corruption and is surfaced as an empty document.
		_ = json.Unmarshal([]byte(task.Payload), &payload)
	}
	return dto.TaskInstruction{
		TaskID:         task.ID,
		Type:           task.Type,
		Payload:        payload,
		TimeoutSeconds: task.TimeoutSeconds,
	}
}

// resolveResults closes tasks for a batch of results. One malformed or stale
// result is logged and skipped without losing the rest of the batch.
func (uc *UseCase) resolveResults(ctx context.Context, agentID string, results []models.TaskResult) (processed, skipped int) {
	for _, result := range results {
		if err := uc.resolveOne(ctx, agentID, result); err != nil {
			skipped++
			uc.logger.WithAgentID(agentID).WithError(err).Warn("skipping task result",
				zap.String(logger.FieldTaskID, result.TaskID),
			)
			continue
		}
		processed++
	}
	return processed, skipped
}

func (uc *UseCase) resolveOne(ctx context.Context, agentID string, result models.TaskResult) error {
	if _, err := uuid.Parse(result.TaskID); err != nil {
		return models.ErrMalformedIdentity
	}
	if !models.TerminalTaskStatus(result.Status) {
		return models.ErrValidation
	}
	if err := uc.repo.ResolveTask(ctx, &result, uc.now()); err != nil {
		return err
	}
	uc.publish(ctx, Event{Type: "task.resolved", AgentID: agentID, TaskID: result.TaskID, Status: result.Status})
	return nil
}

// ProcessResults handles the standalone task-result endpoint.
func (uc *UseCase) ProcessResults(ctx context.Context, agentID string, results []models.TaskResult) (processed, skipped int) {
	unlock := uc.lockAgent(agentID)
	defer unlock()
	return uc.resolveResults(ctx, agentID, results)
}

func (uc *UseCase) appendMetrics(ctx context.Context, agentID string, metrics *dto.SystemMetrics, now time.Time) error {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	ts := now
	if metrics.Timestamp > 0 {
		ts = time.Unix(int64(metrics.Timestamp), 0)
	}
	record := models.TelemetryRecord{
		AgentID:   agentID,
		Timestamp: ts,
		Kind:      models.TelemetryKindSystemMetrics,
		Payload:   string(payload),
	}
	if err := uc.repo.AppendTelemetry(ctx, &record); err != nil {
		return err
	}
	uc.keepHot(record)
	return nil
}

// AppendTelemetryBatch stores a named-metric batch from the telemetry
// endpoint. Per-metric failures are isolated.
func (uc *UseCase) AppendTelemetryBatch(ctx context.Context, agentID string, batch *dto.TelemetryBatchRequest) int {
	received := 0
	for _, metric := range batch.Metrics {
		payload, err := json.Marshal(metric)
		if err != nil {
			uc.logger.WithAgentID(agentID).WithError(err).Warn("skipping telemetry metric")
			continue
		}
		ts := metric.Timestamp
		if ts.IsZero() {
			ts = batch.Timestamp
		}
		if ts.IsZero() {
			ts = uc.now()
		}
		record := models.TelemetryRecord{
			AgentID:   agentID,
			Timestamp: ts,
			Kind:      models.TelemetryKindLog,
			Payload:   string(payload),
		}
		if err := uc.repo.AppendTelemetry(ctx, &record); err != nil {
			uc.logger.WithAgentID(agentID).WithError(err).Warn("failed to store telemetry metric")
			continue
		}
		uc.keepHot(record)
		received++
	}
	return received
}

// keepHot tracks the most recent telemetry per agent in memory, bounded to
// the configured limit.
func (uc *UseCase) keepHot(record models.TelemetryRecord) {
	uc.hotMu.Lock()
	defer uc.hotMu.Unlock()
	ring := append(uc.hot[record.AgentID], record)
	if len(ring) > uc.hotLimit {
		ring = ring[len(ring)-uc.hotLimit:]
	}
	uc.hot[record.AgentID] = ring
}

// RecentTelemetry serves from the hot in-memory window when it can and falls
// back to durable storage for anything larger.
func (uc *UseCase) RecentTelemetry(ctx context.Context, agentID string, limit int) ([]models.TelemetryRecord, error) {
	if limit > 0 {
		uc.hotMu.RLock()
		ring := uc.hot[agentID]
		if len(ring) >= limit {
			out := make([]models.TelemetryRecord, limit)
			// newest first
			for i := 0; i < limit; i++ {
				out[i] = ring[len(ring)-1-i]
			}
			uc.hotMu.RUnlock()
			return out, nil
		}
		uc.hotMu.RUnlock()
	}
	return uc.repo.RecentTelemetry(ctx, agentID, limit)
}

// EnqueueTask creates a queued task for an agent.
func (uc *UseCase) EnqueueTask(ctx context.Context, req *dto.CreateTaskRequest) (*models.Task, error) {
	if _, err := uc.repo.GetAgent(ctx, req.AgentID); err != nil {
		return nil, err
	}

	payload := req.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	timeout := req.TimeoutSeconds
	if timeout == 0 {
		timeout = models.DefaultTaskTimeoutSeconds
	}

	task := &models.Task{
		ID:             uuid.NewString(),
		AgentID:        req.AgentID,
		Type:           req.Type,
		Payload:        string(encoded),
		TimeoutSeconds: timeout,
		Status:         models.TaskStatusQueued,
		CreatedBy:      req.CreatedBy,
	}
	if err := uc.repo.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	uc.logger.WithAgentID(req.AgentID).WithTaskID(task.ID).Info("task queued", zap.String("type", task.Type))
	uc.publish(ctx, Event{Type: "task.queued", AgentID: req.AgentID, TaskID: task.ID})
	return task, nil
}

func (uc *UseCase) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	return uc.repo.GetAgent(ctx, id)
}

func (uc *UseCase) ListAgents(ctx context.Context) ([]models.Agent, error) {
	return uc.repo.ListAgents(ctx)
}

func (uc *UseCase) DeleteAgent(ctx context.Context, id string) error {
	unlock := uc.lockAgent(id)
	defer unlock()

	if err := uc.repo.DeleteAgent(ctx, id); err != nil {
		return err
	}
	uc.mailbox.Forget(id)
	uc.hotMu.Lock()
	delete(uc.hot, id)
	uc.hotMu.Unlock()
	uc.publish(ctx, Event{Type: "agent.deleted", AgentID: id})
	return nil
}

func (uc *UseCase) GetTask(ctx context.Context, id string) (*models.Task, error) {
	return uc.repo.GetTask(ctx, id)
}

func (uc *UseCase) ListTasks(ctx context.Context) ([]models.Task, error) {
	return uc.repo.ListTasks(ctx)
}

func (uc *UseCase) ListTasksByAgent(ctx context.Context, agentID string) ([]models.Task, error) {
	return uc.repo.ListTasksByAgent(ctx, agentID)
}

// UpdateAgentConfig validates and applies an operator configuration change.
// A beacon interval change is persisted in the registry and armed in the
// mailbox so the agent reconfigures itself on its next beacon; the metrics
// toggle only rides the mailbox.
func (uc *UseCase) UpdateAgentConfig(ctx context.Context, agentID string, req *dto.UpdateAgentConfigRequest) error {
	if req.BeaconIntervalSeconds != nil {
		if *req.BeaconIntervalSeconds < models.MinBeaconIntervalSeconds ||
			*req.BeaconIntervalSeconds > models.MaxBeaconIntervalSeconds {
			return models.ErrValidation
		}
	}

	unlock := uc.lockAgent(agentID)
	defer unlock()

	agent, err := uc.repo.GetAgent(ctx, agentID)
	if err != nil {
		return err
	}

	update := &models.ConfigUpdate{
		BeaconIntervalSeconds: req.BeaconIntervalSeconds,
		CollectSystemMetrics:  req.CollectSystemMetrics,
	}
	if update.Empty() {
		return models.ErrValidation
	}

	if req.BeaconIntervalSeconds != nil {
		agent.BeaconIntervalSeconds = *req.BeaconIntervalSeconds
		if err := uc.repo.SaveAgent(ctx, agent); err != nil {
			return err
		}
	}

	uc.mailbox.Arm(agentID, update)
	uc.logger.WithAgentID(agentID).Info("config update armed")
	uc.publish(ctx, Event{Type: "config.armed", AgentID: agentID})
	return nil
}

// SweepOffline marks every agent offline whose last beacon is older than
// three times its configured interval. Safe to run concurrently with beacons:
// each agent is checked and updated under its own lock.
func (uc *UseCase) SweepOffline(ctx context.Context) (int, error) {
	agents, err := uc.repo.ListAgents(ctx)
	if err != nil {
		return 0, err
	}

	now := uc.now()
	count := 0
	for i := range agents {
		agent := agents[i]
		if agent.Status == models.AgentStatusOffline || !agent.Stale(now) {
			continue
		}

		unlock := uc.lockAgent(agent.ID)
		// Re-read under the lock; a beacon may have landed meanwhile.
		current, err := uc.repo.GetAgent(ctx, agent.ID)
		if err != nil {
			unlock()
			continue
		}
		if current.Status != models.AgentStatusOffline && current.Stale(now) {
			current.Status = models.AgentStatusOffline
			if err := uc.repo.SaveAgent(ctx, current); err != nil {
				uc.logger.WithAgentID(agent.ID).WithError(err).Error("failed to mark agent offline")
			} else {
				count++
				uc.publish(ctx, Event{Type: "agent.status", AgentID: agent.ID, Status: models.AgentStatusOffline})
			}
		}
		unlock()
	}
	return count, nil
}

// PurgeTelemetry removes durable telemetry older than the retention horizon.
func (uc *UseCase) PurgeTelemetry(ctx context.Context) (int, error) {
	cutoff := uc.now().Add(-uc.retention)
	purged, err := uc.repo.PurgeTelemetryBefore(ctx, cutoff)
	return int(purged), err
}
