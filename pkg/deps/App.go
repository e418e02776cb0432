package deps

import (
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/middleware"
	"github.com/arclight-c2/arclight/pkg/poll"
	"github.com/arclight-c2/arclight/pkg/pubsub"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type App struct {
	Fiber      *fiber.App
	Logger     *logger.CanonicalLogger
	Database   *gorm.DB
	Middleware *middleware.AuthMiddleware
	Sweeper    poll.Sweeper
	Pub        pubsub.Publisher
}
