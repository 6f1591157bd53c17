// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
)

// Host keeps the agents of one worker and serves the agent actions for
// them.
type Host struct {
	workerAddress string
	logger        *slog.Logger

	// registrarFor returns the registrar for a controller address.
	// Replaced in tests.
	registrarFor func(controllerAddress string) Registrar

	mu    sync.Mutex
	units map[string]*Unit
}

// NewHost returns an empty host for the worker listening on
// workerAddress.
func NewHost(workerAddress string, logger *slog.Logger) *Host {
	host := &Host{
		workerAddress: workerAddress,
		logger:        logger,
		units:         make(map[string]*Unit),
	}
	host.registrarFor = func(controllerAddress string) Registrar {
		return NewRemoteRegistrar(rpc.NewClient(controllerAddress), host.workerAddress)
	}
	return host
}

// Spawn creates the agent for request and registers it with the
// controller. The agent is reachable through the host before the
// registration call is made, so the controller may query it as soon as
// it knows about it.
func (h *Host) Spawn(ctx context.Context, request SpawnRequest) (*Unit, error) {
	unit, err := NewUnit(request.UnitID, request.Params)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if _, exists := h.units[unit.ID()]; exists {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: agent %s already exists in this worker",
			schema.ErrDuplicateRegistration, unit.ID())
	}
	h.units[unit.ID()] = unit
	h.mu.Unlock()

	if err := h.registrarFor(request.ControllerAddress).Register(ctx, unit); err != nil {
		h.mu.Lock()
		delete(h.units, unit.ID())
		h.mu.Unlock()
		return nil, fmt.Errorf("registering agent %s: %w", unit.ID(), err)
	}

	h.logger.Debug("agent spawned",
		"unit_id", unit.ID(),
		"rated_capacity", unit.Params().RatedCapacity,
	)
	return unit, nil
}

// Unit returns the agent with id.
func (h *Host) Unit(id string) (*Unit, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	unit, ok := h.units[id]
	if !ok {
		return nil, fmt.Errorf("%w: no agent %q in this worker", schema.ErrProtocol, id)
	}
	return unit, nil
}

// Len returns the number of hosted agents.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.units)
}

// Handle registers the agent actions on server.
func (h *Host) Handle(server *rpc.Server) {
	server.Handle(ActionSpawn, func(ctx context.Context, body rpc.Body) (any, error) {
		var request SpawnRequest
		if err := body.Decode(&request); err != nil {
			return nil, err
		}
		_, err := h.Spawn(ctx, request)
		return nil, err
	})

	server.Handle(ActionUpdateState, func(ctx context.Context, body rpc.Body) (any, error) {
		var request updateStateRequest
		if err := body.Decode(&request); err != nil {
			return nil, err
		}
		unit, err := h.Unit(request.UnitID)
		if err != nil {
			return nil, err
		}
		return nil, unit.UpdateState(ctx, request.State)
	})

	server.Handle(ActionGetOutput, func(ctx context.Context, body rpc.Body) (any, error) {
		unit, err := h.unitFor(body)
		if err != nil {
			return nil, err
		}
		output, err := unit.Output(ctx)
		if err != nil {
			return nil, err
		}
		return outputResponse{Output: output}, nil
	})

	server.Handle(ActionAcceptLimit, func(ctx context.Context, body rpc.Body) (any, error) {
		var request limitMessage
		if err := body.Decode(&request); err != nil {
			return nil, err
		}
		unit, err := h.Unit(request.UnitID)
		if err != nil {
			return nil, err
		}
		return nil, unit.AcceptLimit(ctx, request.Limit)
	})

	server.Handle(ActionGetPendingLimit, func(ctx context.Context, body rpc.Body) (any, error) {
		unit, err := h.unitFor(body)
		if err != nil {
			return nil, err
		}
		limit, err := unit.PendingLimit(ctx)
		if err != nil {
			return nil, err
		}
		return limitMessage{Limit: limit}, nil
	})
}

func (h *Host) unitFor(body rpc.Body) (*Unit, error) {
	var request unitRequest
	if err := body.Decode(&request); err != nil {
		return nil, err
	}
	return h.Unit(request.UnitID)
}

func protocolError(message string) error {
	return fmt.Errorf("%w: %s", schema.ErrProtocol, message)
}
