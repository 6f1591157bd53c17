// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/feedin-foundation/feedin/lib/schema"
)

// Agent is the control surface of one unit.
type Agent interface {
	// ID returns the agent's entity id, e.g. "Agent_3".
	ID() string

	// RatedCapacity bounds every limit the agent accepts.
	RatedCapacity() float64

	// UpdateState overwrites the cached output with the one in state.
	UpdateState(ctx context.Context, state schema.State) error

	// Output returns the cached output, 0 before the first update.
	Output(ctx context.Context) (float64, error)

	// AcceptLimit stores a new limit. nil means no cap.
	AcceptLimit(ctx context.Context, limit *float64) error

	// PendingLimit returns the last accepted limit, or nil if none
	// was accepted yet.
	PendingLimit(ctx context.Context) (*float64, error)
}

// Registrar accepts agent registrations. The controller cycle is the
// only production Registrar.
type Registrar interface {
	Register(ctx context.Context, agent Agent) error
}

// Unit is the in-memory agent of one unit. It is safe for concurrent
// use.
type Unit struct {
	id     string
	params schema.Params

	mu     sync.Mutex
	output float64
	limit  *float64
}

// NewUnit returns an unregistered agent. Use Create to also register
// it.
func NewUnit(id string, params schema.Params) (*Unit, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty agent id", schema.ErrProtocol)
	}
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: %w", id, err)
	}
	return &Unit{id: id, params: params}, nil
}

// Create builds the agent for id and registers it with registrar. The
// agent is returned only once registration has completed.
func Create(ctx context.Context, id string, params schema.Params, registrar Registrar) (*Unit, error) {
	unit, err := NewUnit(id, params)
	if err != nil {
		return nil, err
	}
	if err := registrar.Register(ctx, unit); err != nil {
		return nil, fmt.Errorf("registering agent %s: %w", id, err)
	}
	return unit, nil
}

// ID returns the agent id.
func (u *Unit) ID() string { return u.id }

// Params returns the unit parameters.
func (u *Unit) Params() schema.Params { return u.params }

func (u *Unit) RatedCapacity() float64 { return u.params.RatedCapacity }

// UpdateState caches the output in state as reported. Only a missing
// or non-finite output is rejected.
func (u *Unit) UpdateState(_ context.Context, state schema.State) error {
	output, err := state.Output()
	if err != nil {
		return fmt.Errorf("agent %s: %w", u.id, err)
	}
	if math.IsNaN(output) || math.IsInf(output, 0) {
		return fmt.Errorf("%w: agent %s: output %v is not a finite number",
			schema.ErrProtocol, u.id, output)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.output = output
	return nil
}

// Output returns the cached output.
func (u *Unit) Output(context.Context) (float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.output, nil
}

// AcceptLimit stores limit, replacing nil by the rated capacity.
func (u *Unit) AcceptLimit(_ context.Context, limit *float64) error {
	value := u.params.RatedCapacity
	if limit != nil {
		value = *limit
	}
	if math.IsNaN(value) || value < 0 || value > u.params.RatedCapacity {
		return fmt.Errorf("%w: agent %s: limit %v outside [0, %v]",
			schema.ErrInvariant, u.id, value, u.params.RatedCapacity)
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	u.limit = &value
	return nil
}

// PendingLimit returns a copy of the last accepted limit.
func (u *Unit) PendingLimit(context.Context) (*float64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.limit == nil {
		return nil, nil
	}
	value := *u.limit
	return &value, nil
}
