// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory keeps the gateway's handles to every agent and
// fans batch operations out to them.
//
// Agents are added during setup and only read afterwards. Batch
// operations run one request per agent concurrently and fail as a
// whole on the first error: the remaining requests are cancelled and
// nothing is retried.
package directory

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/feedin-foundation/feedin/lib/agent"
	"github.com/feedin-foundation/feedin/lib/schema"
)

// Directory maps agent ids to agents.
type Directory struct {
	mu     sync.RWMutex
	agents map[string]agent.Agent
	order  []string
}

// New returns an empty directory.
func New() *Directory {
	return &Directory{agents: make(map[string]agent.Agent)}
}

// Add inserts an agent. Adding an id twice is a defect.
func (d *Directory) Add(a agent.Agent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.agents[a.ID()]; exists {
		return fmt.Errorf("%w: agent %s already in directory", schema.ErrDuplicateRegistration, a.ID())
	}
	d.agents[a.ID()] = a
	d.order = append(d.order, a.ID())
	return nil
}

// Get returns the agent for id.
func (d *Directory) Get(id string) (agent.Agent, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.agents[id]
	return a, ok
}

// IDs returns every agent id in insertion order.
func (d *Directory) IDs() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// Len returns the number of agents.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.order)
}

// Update forwards each state to its agent. An id that is not in the
// directory fails the batch with ErrProtocol before any agent is
// contacted.
func (d *Directory) Update(ctx context.Context, states map[string]schema.State) error {
	targets := make(map[string]agent.Agent, len(states))
	d.mu.RLock()
	for id := range states {
		a, ok := d.agents[id]
		if !ok {
			d.mu.RUnlock()
			return fmt.Errorf("%w: unknown agent %q", schema.ErrProtocol, id)
		}
		targets[id] = a
	}
	d.mu.RUnlock()

	group, groupCtx := errgroup.WithContext(ctx)
	for id, a := range targets {
		state := states[id]
		group.Go(func() error {
			if err := a.UpdateState(groupCtx, state); err != nil {
				return fmt.Errorf("updating %s: %w", id, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Collect returns the pending limit of every agent. Agents that have
// not accepted a limit yet map to nil.
func (d *Directory) Collect(ctx context.Context) (map[string]*float64, error) {
	d.mu.RLock()
	agents := make([]agent.Agent, 0, len(d.order))
	for _, id := range d.order {
		agents = append(agents, d.agents[id])
	}
	d.mu.RUnlock()

	limits := make([]*float64, len(agents))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, a := range agents {
		group.Go(func() error {
			limit, err := a.PendingLimit(groupCtx)
			if err != nil {
				return fmt.Errorf("collecting limit of %s: %w", a.ID(), err)
			}
			limits[i] = limit
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	result := make(map[string]*float64, len(agents))
	for i, a := range agents {
		result[a.ID()] = limits[i]
	}
	return result, nil
}
