package poll

import (
	"context"
	"sync"

	"github.com/arclight-c2/arclight/pkg/logger"
	"go.uber.org/zap"
	"time"
)

// sweeper implements the Sweeper interface
type sweeper struct {
	logger *logger.CanonicalLogger
	stopCh chan struct{}
	stop   sync.Once
	sweeps map[string]registeredSweep
}

// NewSweeper creates a new Sweeper instance
func NewSweeper(log *logger.CanonicalLogger) Sweeper {
	return &sweeper{
		logger: log,
		stopCh: make(chan struct{}),
		sweeps: make(map[string]registeredSweep),
	}
}

// Start begins running registered sweeps, one goroutine per sweep.
func (s *sweeper) Start(ctx context.Context) error {
	for name, sweep := range s.sweeps {
		go s.run(ctx, name, sweep)
	}
	return nil
}

// Stop gracefully stops the sweeper
func (s *sweeper) Stop() error {
	s.stop.Do(func() { close(s.stopCh) })
	return nil
}

func (s *sweeper) run(ctx context.Context, name string, sweep registeredSweep) {
	ticker := time.NewTicker(sweep.Interval)
	defer ticker.Stop()

	s.logger.Info("sweep scheduled",
		zap.String(logger.FieldSweepName, name),
		zap.Duration("interval", sweep.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			s.logger.Info("stopping sweep", zap.String(logger.FieldSweepName, name))
			return
		case <-ticker.C:
			affected, err := sweep.SweepFunc(ctx)
			if err != nil {
				s.logger.Error("sweep failed",
					zap.String(logger.FieldSweepName, name),
					zap.Error(err),
				)
				continue
			}
			if affected > 0 {
				s.logger.Info("sweep completed",
					zap.String(logger.FieldSweepName, name),
					zap.Int("affected", affected),
				)
			}
		}
	}
}

// RegisterSweep registers a sweep function with its schedule
func (s *sweeper) RegisterSweep(name string, fn SweepFunc, config SweepConfig) {
	if name == "" || fn == nil {
		s.logger.Error("invalid sweep registration")
		return
	}
	if _, exists := s.sweeps[name]; exists {
		panic("sweep name already registered")
	}
	s.sweeps[name] = registeredSweep{
		SweepFunc:   fn,
		SweepConfig: config,
	}
	s.logger.Info("sweep registered",
		zap.String(logger.FieldSweepName, name),
		zap.Duration("interval", config.Interval),
	)
}
