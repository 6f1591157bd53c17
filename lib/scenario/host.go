// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"context"
	"fmt"
	"sync"

	"github.com/feedin-foundation/feedin/lib/schema"
	"github.com/feedin-foundation/feedin/lib/wecs"
)

// HostID prefixes the ids of the host's units.
const HostID = "WecsSim-0"

// Host is the host simulation of a scenario run. It is safe for
// concurrent use: the gateway calls SetData and RelatedEntities from
// its own goroutines.
type Host struct {
	mu     sync.Mutex
	sim    *wecs.Sim
	agents map[string]int
	units  map[string]int

	// pending holds limits pushed since the last step, by unit index.
	pending map[int]float64
}

// NewHost returns a host simulating one unit per params entry.
func NewHost(params []schema.Params) (*Host, error) {
	sim, err := wecs.NewSim(params)
	if err != nil {
		return nil, err
	}
	h := &Host{
		sim:     sim,
		agents:  make(map[string]int, len(params)),
		units:   make(map[string]int, len(params)),
		pending: make(map[int]float64),
	}
	for i := range params {
		h.units[UnitID(i)] = i
	}
	return h, nil
}

// UnitID returns the full id of unit i.
func UnitID(i int) string {
	return fmt.Sprintf("%s.wecs-%d", HostID, i)
}

// Len returns the number of units.
func (h *Host) Len() int {
	return h.sim.Len()
}

// Connect pairs agentID with unit i.
func (h *Host) Connect(agentID string, i int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if i < 0 || i >= h.sim.Len() {
		return fmt.Errorf("unit index %d out of range [0, %d)", i, h.sim.Len())
	}
	if _, ok := h.agents[agentID]; ok {
		return fmt.Errorf("agent %s already connected", agentID)
	}
	h.agents[agentID] = i
	return nil
}

func (h *Host) RelatedEntities(_ context.Context, agentIDs []string) (map[string][]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	relations := make(map[string][]string, len(agentIDs))
	for _, id := range agentIDs {
		if i, ok := h.agents[id]; ok {
			relations[id] = []string{UnitID(i)}
		} else {
			relations[id] = nil
		}
	}
	return relations, nil
}

// SetData records limits for the next step. Each limit must be
// addressed to the unit its agent is connected to.
func (h *Host) SetData(_ context.Context, push schema.LimitPush) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for agentID, targets := range push {
		i, ok := h.agents[agentID]
		if !ok {
			return fmt.Errorf("%w: limit from unknown agent %q", schema.ErrProtocol, agentID)
		}
		for unitID, attrs := range targets {
			if unitID != UnitID(i) {
				return fmt.Errorf("%w: agent %s sent a limit to %s, which it does not control",
					schema.ErrProtocol, agentID, unitID)
			}
			limit, ok := attrs[schema.AttrLimit]
			if !ok {
				return fmt.Errorf("%w: push to %s has no %s", schema.ErrProtocol, unitID, schema.AttrLimit)
			}
			h.pending[i] = limit
		}
	}
	return nil
}

// Advance applies the pending limits, defaulting to rated capacity,
// and steps every unit at speeds. It returns the limits applied.
func (h *Host) Advance(speeds []float64) ([]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	limits := make([]float64, h.sim.Len())
	for i := range limits {
		limits[i] = h.sim.RatedCapacity(i)
		if limit, ok := h.pending[i]; ok {
			limits[i] = limit
		}
	}
	clear(h.pending)
	if err := h.sim.SetLimits(limits); err != nil {
		return nil, err
	}
	if err := h.sim.Step(speeds); err != nil {
		return nil, err
	}
	return limits, nil
}

// Inputs returns the step inputs for every connected agent: the
// output of its unit after the last Advance.
func (h *Host) Inputs() schema.Inputs {
	h.mu.Lock()
	defer h.mu.Unlock()
	inputs := make(schema.Inputs, len(h.agents))
	for agentID, i := range h.agents {
		inputs[agentID] = map[string]map[string]float64{
			schema.AttrOutput: {UnitID(i): h.sim.Output(i)},
		}
	}
	return inputs
}

// Output returns the output of unit i after the last Advance.
func (h *Host) Output(i int) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sim.Output(i)
}
