package middleware

import (
	"net/http"

	"github.com/arclight-c2/arclight/internal/models"
	authentication "github.com/arclight-c2/arclight/pkg/auth"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/wrapper"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const AgentIDContextKey = "agent_id"

const (
	HeaderAgentID   = "X-Agent-ID"
	HeaderSignature = "X-Signature"
)

// AgentSignatureAuth authenticates agent requests by recomputing the
// HMAC-SHA256 of the raw request body with the agent's stored PSK and
// comparing it against the X-Signature header. Verification happens before
// any handler runs, so a bad signature mutates no state. The verified agent
// id is stored in c.Locals for downstream handlers.
func AgentSignatureAuth(db *gorm.DB, log *logger.CanonicalLogger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		agentID := c.Get(HeaderAgentID)
		signature := c.Get(HeaderSignature)
		if agentID == "" || signature == "" {
			log.Debug("missing agent credentials",
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(wrapper.ResponseFailed(http.StatusUnauthorized, models.ErrMissingCredentials.Error(), nil))
		}

		if _, err := uuid.Parse(agentID); err != nil {
			log.Debug("malformed agent id",
				zap.String("path", c.Path()),
				zap.String("agent_id", agentID),
			)
			return c.Status(fiber.StatusBadRequest).JSON(wrapper.ResponseFailed(http.StatusBadRequest, models.ErrMalformedIdentity.Error(), nil))
		}

		var agent models.Agent
		if err := db.Where("id = ?", agentID).First(&agent).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				log.Debug("unknown agent",
					zap.String("path", c.Path()),
					zap.String("agent_id", agentID),
				)
				return c.Status(fiber.StatusUnauthorized).JSON(wrapper.ResponseFailed(http.StatusUnauthorized, models.ErrUnknownAgent.Error(), nil))
			}

			log.Error("database error during agent lookup",
				zap.Error(err),
				zap.String("path", c.Path()),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(wrapper.ResponseFailed(http.StatusInternalServerError, "authentication failed", nil))
		}

		// The signature covers the exact body bytes the agent sent.
		if !authentication.VerifySignature(agent.PSK, c.Body(), signature) {
			log.Debug("invalid signature",
				zap.String("path", c.Path()),
				zap.String("agent_id", agentID),
				zap.String("ip", c.IP()),
			)
			return c.Status(fiber.StatusUnauthorized).JSON(wrapper.ResponseFailed(http.StatusUnauthorized, models.ErrInvalidSignature.Error(), nil))
		}

		c.Locals(AgentIDContextKey, agent.ID)
		logger.AddToContext(c.UserContext(), zap.String(logger.FieldAgentID, agent.ID))

		return c.Next()
	}
}
