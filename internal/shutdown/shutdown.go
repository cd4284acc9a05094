// Package shutdown implements the broker's graceful shutdown coordinator
// (C7): signal handling and a deadline-bounded drain.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ap3pp3rs94/signal-broker/internal/telemetry"
)

// Coordinator watches for SIGINT/SIGTERM and drives the shutdown sequence
// described in the component design: close every registered channel,
// stop accepting new connections, and exit cleanly within a deadline or
// force-exit past it.
type Coordinator struct {
	log     *telemetry.Logger
	drain   time.Duration
	osExit  func(int)
}

func New(log *telemetry.Logger, drain time.Duration) *Coordinator {
	return &Coordinator{log: log, drain: drain, osExit: os.Exit}
}

// Wait blocks until a termination signal arrives, then runs closeAll and
// stopAccepting, returning once both complete or the drain deadline
// elapses (in which case it force-exits with status 1 itself — it never
// returns in that branch).
func (c *Coordinator) Wait(ctx context.Context, closeAll func(), stopAccepting func() error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		c.log.Info("shutdown signal received", map[string]any{"signal": sig.String()})
	case <-ctx.Done():
		c.log.Info("shutdown requested via context", nil)
	}

	done := make(chan struct{})
	go func() {
		closeAll()
		if err := stopAccepting(); err != nil {
			c.log.Error("listener shutdown error", map[string]any{"err": err.Error()})
		}
		close(done)
	}()

	select {
	case <-done:
		c.log.Info("shutdown complete", nil)
	case <-time.After(c.drain):
		c.log.Error("shutdown drain deadline exceeded, forcing exit", map[string]any{"drain": c.drain.String()})
		c.osExit(1)
	}
}
