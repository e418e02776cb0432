package handler

import (
	"encoding/json"
	"errors"

	"github.com/arclight-c2/arclight/internal/config"
	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/internal/server/dto"
	"github.com/arclight-c2/arclight/internal/server/mailbox"
	"github.com/arclight-c2/arclight/internal/server/repository"
	"github.com/arclight-c2/arclight/internal/server/usecase"
	"github.com/arclight-c2/arclight/pkg/deps"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/middleware"
	"github.com/arclight-c2/arclight/pkg/validator"
	"github.com/arclight-c2/arclight/pkg/wrapper"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Handler struct {
	Logger     *logger.CanonicalLogger
	UseCase    *usecase.UseCase
	Config     *config.ServerConfig
	Middleware *middleware.AuthMiddleware
}

func NewHandler(d deps.App, cfg *config.ServerConfig) *Handler {

	repo := repository.NewRepository(d.Database)

	uc := usecase.NewUseCase(usecase.Opts{
		Repo:               repo,
		Mailbox:            mailbox.New(),
		Logger:             d.Logger,
		Pub:                d.Pub,
		HotLimit:           cfg.TelemetryHotLimit,
		TelemetryRetention: cfg.TelemetryRetention,
	})

	h := &Handler{
		Logger:     d.Logger,
		UseCase:    uc,
		Config:     cfg,
		Middleware: d.Middleware,
	}

	// Health check endpoint (no auth required)
	d.Fiber.Get("/health", h.health)

	// Agent-facing endpoints, authenticated per request by body signature
	agentRoutes := d.Fiber.Group("/api/v1/agent", middleware.AgentSignatureAuth(d.Database, d.Logger))
	agentRoutes.Post("/beacon", h.beacon)
	agentRoutes.Post("/task_results", h.taskResults)
	agentRoutes.Post("/telemetry", h.telemetry)

	// Operator endpoints (admin only)
	adminRoutes := d.Fiber.Group("/api/v1/admin", d.Middleware.BasicAuthAdmin())
	adminRoutes.Post("/agents", h.createAgent)
	adminRoutes.Get("/agents", h.listAgents)
	adminRoutes.Post("/agents/refresh", h.refreshAgents)
	adminRoutes.Get("/agents/:id", h.getAgent)
	adminRoutes.Delete("/agents/:id", h.deleteAgent)
	adminRoutes.Put("/agents/:id/config", h.updateAgentConfig)
	adminRoutes.Get("/agents/:id/telemetry", h.agentTelemetry)
	adminRoutes.Post("/tasks", h.createTask)
	adminRoutes.Get("/tasks", h.listTasks)
	adminRoutes.Get("/tasks/:id", h.getTask)

	return h
}

func verifiedAgentID(c *fiber.Ctx) (string, bool) {
	agentID, ok := c.Locals(middleware.AgentIDContextKey).(string)
	return agentID, ok && agentID != ""
}

// beacon godoc
// @Summary      Agent beacon
// @Description  Process one beacon cycle: update the agent registry, accept attached telemetry and task results, and return dispatched tasks plus any pending configuration update.
// @Tags         agent
// @Accept       json
// @Produce      json
// @Param        X-Agent-ID header string true "Agent identifier"
// @Param        X-Signature header string true "HMAC-SHA256 of request body"
// @Param        request body dto.BeaconRequest true "Beacon payload"
// @Success      200 {object} dto.BeaconResponse "New tasks and configuration update"
// @Failure      400 {object} wrapper.JSONResult "Invalid request body"
// @Failure      401 {object} wrapper.JSONResult "Missing or invalid signature"
// @Router       /api/v1/agent/beacon [post]
func (h *Handler) beacon(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "beacon"))

	agentID, ok := verifiedAgentID(c)
	if !ok {
		h.Logger.Error("agent_id not found in context")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "authentication context error"})
	}

	req := new(dto.BeaconRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	resp, err := h.UseCase.HandleBeacon(c.UserContext(), agentID, req)
	if err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to process beacon"})
	}

	return c.Status(fiber.StatusOK).JSON(resp)
}

// taskResults godoc
// @Summary      Submit task results
// @Description  Accept a batch of task results outside the beacon cycle. Malformed or stale entries are skipped without rejecting the batch.
// @Tags         agent
// @Accept       json
// @Produce      json
// @Param        X-Agent-ID header string true "Agent identifier"
// @Param        X-Signature header string true "HMAC-SHA256 of request body"
// @Param        request body []models.TaskResult true "Task results"
// @Success      200 {object} dto.TaskResultsResponse "Processed and skipped counts"
// @Failure      400 {object} wrapper.JSONResult "Invalid request body"
// @Failure      401 {object} wrapper.JSONResult "Missing or invalid signature"
// @Router       /api/v1/agent/task_results [post]
func (h *Handler) taskResults(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "task_results"))

	agentID, ok := verifiedAgentID(c)
	if !ok {
		h.Logger.Error("agent_id not found in context")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "authentication context error"})
	}

	var results []models.TaskResult
	if err := c.BodyParser(&results); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	processed, skipped := h.UseCase.ProcessResults(c.UserContext(), agentID, results)
	logger.AddToContext(c.UserContext(),
		logger.Int(logger.FieldResultCount, processed),
		logger.Int(logger.FieldSkippedCount, skipped),
	)

	res := wrapper.ResponseSuccess(fiber.StatusOK, dto.TaskResultsResponse{Processed: processed, Skipped: skipped})
	return c.Status(res.Code).JSON(res)
}

// telemetry godoc
// @Summary      Submit telemetry batch
// @Description  Accept a batch of named metrics from an agent.
// @Tags         agent
// @Accept       json
// @Produce      json
// @Param        X-Agent-ID header string true "Agent identifier"
// @Param        X-Signature header string true "HMAC-SHA256 of request body"
// @Param        request body dto.TelemetryBatchRequest true "Telemetry batch"
// @Success      200 {object} dto.TelemetryBatchResponse "Number of metrics stored"
// @Failure      400 {object} wrapper.JSONResult "Invalid request body or validation error"
// @Failure      401 {object} wrapper.JSONResult "Missing or invalid signature"
// @Router       /api/v1/agent/telemetry [post]
func (h *Handler) telemetry(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "telemetry"))

	agentID, ok := verifiedAgentID(c)
	if !ok {
		h.Logger.Error("agent_id not found in context")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "authentication context error"})
	}

	req := new(dto.TelemetryBatchRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	received := h.UseCase.AppendTelemetryBatch(c.UserContext(), agentID, req)

	res := wrapper.ResponseSuccess(fiber.StatusOK, dto.TelemetryBatchResponse{Received: received})
	return c.Status(res.Code).JSON(res)
}

// createAgent godoc
// @Summary      Register a new agent
// @Description  Create an agent identity. The pre-shared key is returned exactly once in the response; only its presence is stored afterwards.
// @Tags         agents
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateAgentRequest true "Agent registration details"
// @Success      201 {object} dto.CreateAgentResponse "Registered agent with its PSK"
// @Failure      400 {object} wrapper.JSONResult "Invalid request body or validation error"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/agents [post]
// @Security     BasicAuth
func (h *Handler) createAgent(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "create_agent"))

	req := new(dto.CreateAgentRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	agent, err := h.UseCase.RegisterAgent(c.UserContext(), req.Name, req.PSK, req.Tags)
	if err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register agent"})
	}

	res := wrapper.ResponseSuccess(fiber.StatusCreated, dto.CreateAgentResponse{
		AgentID: agent.ID,
		Name:    agent.Name,
		PSK:     agent.PSK,
	})
	return c.Status(res.Code).JSON(res)
}

// listAgents godoc
// @Summary      List agents
// @Description  List every registered agent with its current status and last-seen timestamp.
// @Tags         agents
// @Accept       json
// @Produce      json
// @Success      200 {object} wrapper.JSONResult "List of agents"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/agents [get]
// @Security     BasicAuth
func (h *Handler) listAgents(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "list_agents"))

	agents, err := h.UseCase.ListAgents(c.UserContext())
	if err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list agents"})
	}

	infos := make([]dto.AgentInfo, 0, len(agents))
	for i := range agents {
		infos = append(infos, agentInfo(&agents[i]))
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, infos)
	return c.Status(res.Code).JSON(res)
}

// refreshAgents godoc
// @Summary      Refresh agent statuses
// @Description  Run the staleness sweep immediately and report how many agents were marked offline.
// @Tags         agents
// @Accept       json
// @Produce      json
// @Success      200 {object} dto.SweepResponse "Sweep outcome"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/agents/refresh [post]
// @Security     BasicAuth
func (h *Handler) refreshAgents(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "refresh_agents"))

	count, err := h.UseCase.SweepOffline(c.UserContext())
	if err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to refresh agents"})
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, dto.SweepResponse{OfflineCount: count})
	return c.Status(res.Code).JSON(res)
}

// getAgent godoc
// @Summary      Get agent details
// @Description  Retrieve a single agent by id.
// @Tags         agents
// @Accept       json
// @Produce      json
// @Param        id path string true "Agent ID"
// @Success      200 {object} wrapper.JSONResult "Agent details"
// @Failure      404 {object} wrapper.JSONResult "Agent not found"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/agents/{id} [get]
// @Security     BasicAuth
func (h *Handler) getAgent(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "get_agent"))

	agent, err := h.UseCase.GetAgent(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.failed(c, err, "failed to get agent")
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, agentInfo(agent))
	return c.Status(res.Code).JSON(res)
}

// deleteAgent godoc
// @Summary      Delete agent
// @Description  Delete an agent together with its tasks and telemetry.
// @Tags         agents
// @Accept       json
// @Produce      json
// @Param        id path string true "Agent ID"
// @Success      200 {object} wrapper.JSONResult "Agent deleted"
// @Failure      404 {object} wrapper.JSONResult "Agent not found"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/agents/{id} [delete]
// @Security     BasicAuth
func (h *Handler) deleteAgent(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "delete_agent"))

	if err := h.UseCase.DeleteAgent(c.UserContext(), c.Params("id")); err != nil {
		return h.failed(c, err, "failed to delete agent")
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, "agent deleted")
	return c.Status(res.Code).JSON(res)
}

// updateAgentConfig godoc
// @Summary      Update agent configuration
// @Description  Validate and arm a configuration update for the agent. The change is delivered on the agent's next beacon; a later update to the same agent replaces an undelivered one.
// @Tags         agents
// @Accept       json
// @Produce      json
// @Param        id path string true "Agent ID"
// @Param        request body dto.UpdateAgentConfigRequest true "Configuration change"
// @Success      200 {object} wrapper.JSONResult "Configuration update armed"
// @Failure      400 {object} wrapper.JSONResult "Invalid or empty configuration change"
// @Failure      404 {object} wrapper.JSONResult "Agent not found"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/agents/{id}/config [put]
// @Security     BasicAuth
func (h *Handler) updateAgentConfig(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "update_agent_config"))

	req := new(dto.UpdateAgentConfigRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.UseCase.UpdateAgentConfig(c.UserContext(), c.Params("id"), req); err != nil {
		return h.failed(c, err, "failed to update agent config")
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, "config update armed")
	return c.Status(res.Code).JSON(res)
}

// agentTelemetry godoc
// @Summary      Recent agent telemetry
// @Description  Return the most recent telemetry records for an agent, newest first.
// @Tags         agents
// @Accept       json
// @Produce      json
// @Param        id path string true "Agent ID"
// @Param        limit query int false "Maximum records to return" default(100)
// @Success      200 {object} wrapper.JSONResult "Telemetry records"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/agents/{id}/telemetry [get]
// @Security     BasicAuth
func (h *Handler) agentTelemetry(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "agent_telemetry"))

	limit := c.QueryInt("limit", h.Config.TelemetryHotLimit)
	records, err := h.UseCase.RecentTelemetry(c.UserContext(), c.Params("id"), limit)
	if err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch telemetry"})
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, records)
	return c.Status(res.Code).JSON(res)
}

// createTask godoc
// @Summary      Queue a task
// @Description  Queue a task for an agent. The task is handed out on the agent's next beacon.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Param        request body dto.CreateTaskRequest true "Task details"
// @Success      201 {object} dto.CreateTaskResponse "Queued task id"
// @Failure      400 {object} wrapper.JSONResult "Invalid request body or validation error"
// @Failure      404 {object} wrapper.JSONResult "Agent not found"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/tasks [post]
// @Security     BasicAuth
func (h *Handler) createTask(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "create_task"))

	req := new(dto.CreateTaskRequest)
	if err := c.BodyParser(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	if err := validator.ValidateStruct(req); err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	task, err := h.UseCase.EnqueueTask(c.UserContext(), req)
	if err != nil {
		return h.failed(c, err, "failed to queue task")
	}

	logger.AddToContext(c.UserContext(), logger.String(logger.FieldTaskID, task.ID))

	res := wrapper.ResponseSuccess(fiber.StatusCreated, dto.CreateTaskResponse{TaskID: task.ID})
	return c.Status(res.Code).JSON(res)
}

// listTasks godoc
// @Summary      List tasks
// @Description  List all tasks newest first, optionally filtered to one agent.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Param        agent_id query string false "Only tasks for this agent"
// @Success      200 {object} wrapper.JSONResult "List of tasks"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/tasks [get]
// @Security     BasicAuth
func (h *Handler) listTasks(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "list_tasks"))

	var tasks []models.Task
	var err error
	if agentID := c.Query("agent_id"); agentID != "" {
		tasks, err = h.UseCase.ListTasksByAgent(c.UserContext(), agentID)
	} else {
		tasks, err = h.UseCase.ListTasks(c.UserContext())
	}
	if err != nil {
		logger.AddToContext(c.UserContext(), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to list tasks"})
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, tasks)
	return c.Status(res.Code).JSON(res)
}

// getTask godoc
// @Summary      Get task details
// @Description  Retrieve a single task, including its output once the agent has reported back.
// @Tags         tasks
// @Accept       json
// @Produce      json
// @Param        id path string true "Task ID"
// @Success      200 {object} wrapper.JSONResult "Task details"
// @Failure      404 {object} wrapper.JSONResult "Task not found"
// @Failure      500 {object} wrapper.JSONResult "Internal server error"
// @Router       /api/v1/admin/tasks/{id} [get]
// @Security     BasicAuth
func (h *Handler) getTask(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "get_task"))

	task, err := h.UseCase.GetTask(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.failed(c, err, "failed to get task")
	}

	res := wrapper.ResponseSuccess(fiber.StatusOK, task)
	return c.Status(res.Code).JSON(res)
}

// health godoc
// @Summary     Health check
// @Description Get server health status (unauthenticated)
// @Tags        health
// @Accept      json
// @Produce    json
// @Success     200 {object} map[string]string
// @Router      /health [get]
func (h *Handler) health(c *fiber.Ctx) error {
	logger.AddToContext(c.UserContext(), logger.String(logger.FieldOperation, "health_check"))

	return c.JSON(fiber.Map{"status": "healthy"})
}

// failed maps domain errors to HTTP statuses for the operator API.
func (h *Handler) failed(c *fiber.Ctx, err error, fallback string) error {
	logger.AddToContext(c.UserContext(), zap.Error(err))

	switch {
	case errors.Is(err, models.ErrUnknownAgent), errors.Is(err, models.ErrUnknownTask):
		res := wrapper.ResponseFailed(fiber.StatusNotFound, err.Error(), nil)
		return c.Status(res.Code).JSON(res)
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrMalformedIdentity):
		res := wrapper.ResponseFailed(fiber.StatusBadRequest, err.Error(), nil)
		return c.Status(res.Code).JSON(res)
	default:
		res := wrapper.ResponseFailed(fiber.StatusInternalServerError, fallback, nil)
		return c.Status(res.Code).JSON(res)
	}
}

func agentInfo(a *models.Agent) dto.AgentInfo {
	var tags []string
	if a.Tags != "" {
		// A decode failure just leaves tags empty in the view.
		_ = json.Unmarshal([]byte(a.Tags), &tags)
	}
	return dto.AgentInfo{
		Tags:                  tags,
		ID:                    a.ID,
		Name:                  a.Name,
		Status:                a.Status,
		BeaconIntervalSeconds: a.BeaconIntervalSeconds,
		LastSeen:              a.LastSeen,
		OSInfo:                a.OSInfo,
		Hostname:              a.Hostname,
		AgentVersion:          a.AgentVersion,
		InternalIP:            a.InternalIP,
		CreatedAt:             a.CreatedAt,
	}
}
