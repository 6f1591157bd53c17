// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
)

// Actions served by a worker for the agents it hosts.
const (
	ActionSpawn           = "agent.spawn"
	ActionUpdateState     = "agent.update_state"
	ActionGetOutput       = "agent.get_output"
	ActionAcceptLimit     = "agent.accept_limit"
	ActionGetPendingLimit = "agent.get_pending_limit"
)

// ActionRegister is served by the gateway's controller endpoint.
const ActionRegister = "controller.register"

// SpawnRequest asks a worker to create and register one agent.
type SpawnRequest struct {
	UnitID            string        `cbor:"unit_id"`
	ControllerAddress string        `cbor:"controller_address"`
	Params            schema.Params `cbor:"params"`
}

// RegisterRequest announces an agent to the controller. The controller
// reaches the agent back through WorkerAddress.
type RegisterRequest struct {
	UnitID        string  `cbor:"unit_id"`
	WorkerAddress string  `cbor:"worker_address"`
	RatedCapacity float64 `cbor:"rated_capacity"`
}

type unitRequest struct {
	UnitID string `cbor:"unit_id"`
}

type updateStateRequest struct {
	UnitID string       `cbor:"unit_id"`
	State  schema.State `cbor:"state"`
}

type limitMessage struct {
	UnitID string   `cbor:"unit_id,omitempty"`
	Limit  *float64 `cbor:"limit,omitempty"`
}

type outputResponse struct {
	Output float64 `cbor:"output"`
}

// Error codes of the agent and controller actions. Registered for
// every process that links this package.
func init() {
	rpc.RegisterCode("protocol", schema.ErrProtocol)
	rpc.RegisterCode("budget_exceeded", schema.ErrBudgetExceeded)
	rpc.RegisterCode("duplicate_registration", schema.ErrDuplicateRegistration)
	rpc.RegisterCode("invariant", schema.ErrInvariant)
}
