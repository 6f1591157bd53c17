// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedin-foundation/feedin/lib/agent"
	"github.com/feedin-foundation/feedin/lib/clock"
	"github.com/feedin-foundation/feedin/lib/metrics"
	"github.com/feedin-foundation/feedin/lib/schema"
	"github.com/feedin-foundation/feedin/lib/signal"
)

// Cycle is the periodic fleet controller. It holds the registered
// agents and runs WAIT_FOR_TICK, COLLECT, DECIDE, APPLY in a loop on
// simulated time.
type Cycle struct {
	sim        *clock.Sim
	fleetLimit float64
	interval   time.Duration
	logger     *slog.Logger

	mu     sync.RWMutex
	agents []agent.Agent
	ids    map[string]struct{}

	// done fires at the end of every cycle.
	done *signal.Signal

	runMu    sync.Mutex
	cancel   context.CancelFunc
	finished chan struct{}
	err      error
}

// New returns a stopped cycle scheduled on sim. The first tick is at
// sim.Start().
func New(sim *clock.Sim, config schema.ControllerConfig, logger *slog.Logger) (*Cycle, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Cycle{
		sim:        sim,
		fleetLimit: config.FleetLimit,
		interval:   config.Interval(),
		logger:     logger,
		ids:        make(map[string]struct{}),
		done:       signal.New(),
		finished:   make(chan struct{}),
	}, nil
}

// Register adds an agent. Registering an id twice returns
// ErrDuplicateRegistration.
func (c *Cycle) Register(_ context.Context, a agent.Agent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.ids[a.ID()]; exists {
		return fmt.Errorf("%w: agent %s", schema.ErrDuplicateRegistration, a.ID())
	}
	c.ids[a.ID()] = struct{}{}
	c.agents = append(c.agents, a)
	c.logger.Debug("agent registered", "unit_id", a.ID(), "agents", len(c.agents))
	return nil
}

// Len returns the number of registered agents.
func (c *Cycle) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.agents)
}

// Start runs the loop in a new goroutine until ctx is cancelled, Stop
// is called or a cycle fails.
func (c *Cycle) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return errors.New("controller cycle already started")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go func() {
		err := c.run(loopCtx)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			c.logger.Error("controller cycle failed", "error", err)
		}
		c.err = err
		close(c.finished)
	}()
	return nil
}

// Next returns a channel closed at the end of the next cycle to
// complete. Capture it before triggering the work the cycle should
// observe: a cycle that completes before Next is called is not seen.
func (c *Cycle) Next() <-chan struct{} {
	return c.done.Wait()
}

// Completed returns the number of completed cycles.
func (c *Cycle) Completed() uint64 {
	return c.done.Generation()
}

// Finished is closed once the loop has exited.
func (c *Cycle) Finished() <-chan struct{} {
	return c.finished
}

// Err returns the error that ended the loop, or nil if it was
// cancelled. Only meaningful after Finished is closed.
func (c *Cycle) Err() error {
	select {
	case <-c.finished:
		return c.err
	default:
		return nil
	}
}

// Stop cancels the loop, waits for it to exit and returns Err. Stopping
// a cycle that was never started is a no-op.
func (c *Cycle) Stop() error {
	c.runMu.Lock()
	cancel := c.cancel
	c.runMu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-c.finished
	return c.err
}

func (c *Cycle) run(ctx context.Context) error {
	tick := c.sim.Start()
	for {
		if err := c.sim.SleepUntil(ctx, tick); err != nil {
			return err
		}
		decision, err := c.runOnce(ctx)
		if err != nil {
			return fmt.Errorf("cycle at %s: %w", tick.Format(time.RFC3339), err)
		}
		generation := c.done.Fire()
		metrics.RecordCycle(decision.Total, decision.Factor, decision.Capped)
		c.logger.Debug("cycle complete",
			"cycle", generation,
			"tick", tick,
			"total", decision.Total,
			"capped", decision.Capped,
			"factor", decision.Factor,
		)
		tick = tick.Add(c.interval)
	}
}

// runOnce performs COLLECT, DECIDE and APPLY for the agents
// registered so far.
func (c *Cycle) runOnce(ctx context.Context) (Decision, error) {
	c.mu.RLock()
	agents := append([]agent.Agent(nil), c.agents...)
	c.mu.RUnlock()

	outputs := make([]float64, len(agents))
	rated := make([]float64, len(agents))
	for i, a := range agents {
		rated[i] = a.RatedCapacity()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	for i, a := range agents {
		group.Go(func() error {
			output, err := a.Output(groupCtx)
			if err != nil {
				return fmt.Errorf("collecting output of %s: %w", a.ID(), err)
			}
			outputs[i] = output
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Decision{}, err
	}

	decision, err := Decide(outputs, rated, c.fleetLimit)
	if err != nil {
		return Decision{}, err
	}

	group, groupCtx = errgroup.WithContext(ctx)
	for i, a := range agents {
		limit := decision.Limits[i]
		group.Go(func() error {
			if err := a.AcceptLimit(groupCtx, limit); err != nil {
				return fmt.Errorf("applying limit to %s: %w", a.ID(), err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return Decision{}, err
	}
	return decision, nil
}
