package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	clierr "github.com/ggonzalez94/cycler/internal/errors"
)

// RunState is the orchestrator's coarse lifecycle state.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateStopping
	StateWaitingForNextCycle
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateWaitingForNextCycle:
		return "waiting_for_next_cycle"
	default:
		return "unknown"
	}
}

// Controller owns the run state, the in-flight operation counter and the
// cancellable sleeps every delay in the orchestrator goes through. RequestStop
// may be called from any goroutine (it is wired to the signal handler); the
// rest of the API is safe for concurrent use too.
type Controller struct {
	mu    sync.Mutex
	state RunState

	stopCh   chan struct{}
	inflight atomic.Int64

	log *slog.Logger
}

func NewController(log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{stopCh: make(chan struct{}), log: log}
}

// Start moves the controller from Idle to Running. A second Start while a run
// is active is rejected.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return clierr.New(clierr.CodeUsage, "orchestrator already running")
	}
	c.state = StateRunning
	c.stopCh = make(chan struct{})
	return nil
}

// RequestStop flips the controller into Stopping and wakes every cancellable
// sleep. Idempotent.
func (c *Controller) RequestStop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateIdle || c.state == StateStopping {
		return
	}
	c.state = StateStopping
	close(c.stopCh)
	c.log.Info("stop requested, draining in-flight operations")
}

func (c *Controller) State() RunState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Stopping reports whether a stop has been requested.
func (c *Controller) Stopping() bool {
	return c.State() == StateStopping
}

// SetWaiting marks the idle period between cycles. No-op once stopping.
func (c *Controller) SetWaiting() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateRunning || c.state == StateWaitingForNextCycle {
		c.state = StateWaitingForNextCycle
	}
}

// SetRunning marks the start of a cycle's active work. No-op once stopping.
func (c *Controller) SetRunning() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateWaitingForNextCycle || c.state == StateRunning {
		c.state = StateRunning
	}
}

// Enter registers one in-flight operation. The matching Exit must run even on
// error paths.
func (c *Controller) Enter() { c.inflight.Add(1) }

// Exit releases one in-flight operation.
func (c *Controller) Exit() { c.inflight.Add(-1) }

// InFlight returns the current in-flight operation count.
func (c *Controller) InFlight() int64 { return c.inflight.Load() }

// Sleep blocks for d unless a stop request or context cancellation arrives
// first, in which case it returns immediately with a stop error. Every delay
// in the orchestrator funnels through here so shutdown never waits out a
// multi-hour timer.
func (c *Controller) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return c.checkStop(ctx)
	}
	c.mu.Lock()
	stopCh := c.stopCh
	stopping := c.state == StateStopping
	c.mu.Unlock()
	if stopping {
		return clierr.New(clierr.CodeStopped, "stop requested")
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-stopCh:
		return clierr.New(clierr.CodeStopped, "stop requested")
	case <-ctx.Done():
		return clierr.Wrap(clierr.CodeStopped, "run cancelled", ctx.Err())
	}
}

func (c *Controller) checkStop(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return clierr.Wrap(clierr.CodeStopped, "run cancelled", err)
	}
	if c.Stopping() {
		return clierr.New(clierr.CodeStopped, "stop requested")
	}
	return nil
}

// AwaitDrain blocks until the in-flight counter reaches zero, logging progress
// once a second, then settles the controller back to Idle.
func (c *Controller) AwaitDrain(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for c.inflight.Load() > 0 {
		c.log.Info("waiting for in-flight operations", "inflight", c.inflight.Load())
		select {
		case <-ticker.C:
		case <-ctx.Done():
		}
		if ctx.Err() != nil && c.inflight.Load() > 0 {
			c.log.Warn("abandoning drain, context cancelled", "inflight", c.inflight.Load())
			break
		}
	}

	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
	c.log.Info("orchestrator stopped")
}
