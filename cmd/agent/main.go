package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/arclight-c2/arclight/internal/agent"
	"github.com/arclight-c2/arclight/internal/config"
	"github.com/arclight-c2/arclight/pkg/logger"
	"github.com/arclight-c2/arclight/pkg/retry"
)

func main() {
	log, err := logger.NewLoggerFromEnv("agent")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	log.Info("starting agent")

	procCfg, err := config.LoadAgentProcessConfig()
	if err != nil {
		log.WithError(err).Fatal("failed to load process configuration")
	}

	agentCfg, err := agent.LoadConfig(procCfg.ConfigPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load agent configuration",
			logger.String("path", procCfg.ConfigPath))
	}

	log.Info("configuration loaded",
		logger.String(logger.FieldAgentID, agentCfg.AgentID),
		logger.String("server_url", agentCfg.ServerURL),
		logger.Int("beacon_interval_seconds", agentCfg.Interval()),
	)

	client := agent.NewClient(agentCfg, procCfg.RequestTimeout, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)
		<-sigChan
		log.Info("shutdown signal received")
		cancel()
	}()

	// Wait for the server before entering the beacon loop so a fleet
	// rollout does not hammer a server that is still coming up.
	probeErr := retry.WithExponentialBackoff(ctx, retry.Config{
		MaxRetries:     procCfg.ProbeMaxRetries,
		InitialBackoff: procCfg.ProbeInitialBackoff,
		MaxBackoff:     procCfg.ProbeMaxBackoff,
		Multiplier:     procCfg.ProbeMultiplier,
		Jitter:         true,
	}, client.Probe)
	if probeErr != nil {
		log.WithError(probeErr).Warn("server unreachable after probing, beaconing anyway")
	}

	runtime := agent.NewRuntime(agentCfg, client, log)
	if err := runtime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("agent runtime failed")
	}

	log.Info("agent stopped gracefully")
}
