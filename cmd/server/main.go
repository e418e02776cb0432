package main

// @title           Arclight C2 Server API
// @version         1.0
// @description     Command and control server. Authenticates agents with per-request HMAC signatures, dispatches queued tasks over the beacon channel and collects telemetry.
// @host      localhost:8080
// @BasePath  /
// @securityDefinitions.basic  BasicAuth

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	_ "github.com/arclight-c2/arclight/docs/server"
	"github.com/arclight-c2/arclight/internal/config"
	"github.com/arclight-c2/arclight/internal/server/handler"
	authentication "github.com/arclight-c2/arclight/pkg/auth"
	"github.com/arclight-c2/arclight/pkg/database"
	"github.com/arclight-c2/arclight/pkg/deps"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/middleware"
	"github.com/arclight-c2/arclight/pkg/poll"
	"github.com/arclight-c2/arclight/pkg/pubsub"
	swagger "github.com/gofiber/swagger"
)

func main() {
	log, err := logger.NewLoggerFromEnv("server")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting c2 server")

	cfg, err := config.LoadServerConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	log.Info("configuration loaded",
		logger.String("server_addr", cfg.ServerAddr),
		logger.String("database_path", cfg.DatabasePath),
		logger.Duration("staleness_sweep_interval", cfg.StalenessSweepInterval),
		logger.Duration("telemetry_retention", cfg.TelemetryRetention),
	)

	auth := middleware.SetBasicAuth(&authentication.BasicAuthConfig{
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
	})
	mid := middleware.NewAuthMiddleware(auth)
	log.Info("authentication initialized")

	db, err := database.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize database")
	}
	log.Info("database initialized", logger.String("path", cfg.DatabasePath))

	if err := database.RunMigrations(db); err != nil {
		log.WithError(err).Fatal("failed to migrate database")
	}
	log.Info("database migrations applied successfully")

	app := fiber.New(fiber.Config{
		AppName:               "Arclight Server",
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.CanonicalLoggerMiddleware(log))

	sweeper := poll.NewSweeper(log)

	deps := deps.App{
		Fiber:      app,
		Database:   db,
		Logger:     log,
		Middleware: mid,
		Sweeper:    sweeper,
	}

	if cfg.Redis != nil {
		redisCfg := pubsub.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		redisPub, err := pubsub.NewRedisPubSub(redisCfg, log)
		if err != nil {
			log.WithError(err).Error("failed to initialize Redis pub/sub, events disabled")
		} else {
			deps.Pub = redisPub
			log.Info("Redis pub/sub initialized",
				logger.String("host", cfg.Redis.Host),
				logger.Int("port", cfg.Redis.Port))
			defer redisPub.Close()
		}
	} else {
		log.Info("no Redis configuration provided; event publishing disabled")
	}

	h := handler.NewHandler(deps, cfg)

	sweeper.RegisterSweep("agent_staleness", h.UseCase.SweepOffline, poll.SweepConfig{
		Interval: cfg.StalenessSweepInterval,
	})
	sweeper.RegisterSweep("telemetry_retention", h.UseCase.PurgeTelemetry, poll.SweepConfig{
		Interval: cfg.RetentionSweepInterval,
	})

	app.Get("/swagger/*", swagger.HandlerDefault)

	ctx, cancel := context.WithCancel(context.Background())
	gErr, gCtx := errgroup.WithContext(ctx)

	gErr.Go(func() error {
		if err := sweeper.Start(gCtx); err != nil {
			return err
		}
		log.Info("background sweeps running")
		return nil
	})

	gErr.Go(func() error {
		log.Info("c2 server is running", logger.String("address", cfg.ServerAddr))
		if err := app.Listen(cfg.ServerAddr); err != nil {
			cancel()
			return err
		}
		return nil
	})

	gErr.Go(func() error {
		<-gCtx.Done()

		if err := sweeper.Stop(); err != nil {
			log.WithError(err).Error("failed to stop sweeper")
		}

		if err := app.Shutdown(); err != nil {
			log.WithError(err).Error("failed to shutdown fiber app")
			return err
		}

		conn, err := db.DB()
		if err != nil {
			log.WithError(err).Error("failed to get database connection")
			return err
		}
		if err := conn.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
			return err
		}

		return nil
	})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		log.Info("listening for shutdown signals")
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	if err := gErr.Wait(); err != nil {
		log.WithError(err).Fatal("c2 server encountered an error")
	}

	log.Info("c2 server stopped gracefully")
}
