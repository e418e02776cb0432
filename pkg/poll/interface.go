package poll

import (
	"context"
	"time"
)

// SweepFunc performs one pass of a periodic maintenance job (staleness check,
// retention purge). It returns the number of records it affected.
type SweepFunc func(ctx context.Context) (int, error)

type SweepConfig struct {
	Interval time.Duration
}

type registeredSweep struct {
	SweepFunc
	SweepConfig
}

// Sweeper schedules periodic maintenance sweeps on the server.
type Sweeper interface {
	// Start begins running all registered sweeps until the context is done.
	Start(ctx context.Context) error
	// Stop gracefully stops the sweeper
	Stop() error
	// RegisterSweep adds a named sweep with its schedule. Must be called
	// before Start.
	RegisterSweep(name string, fn SweepFunc, config SweepConfig)
}
