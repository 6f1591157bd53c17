// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"

	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
)

// Remote reaches an agent hosted by a worker. Every method is one
// request-response exchange with the worker.
type Remote struct {
	id     string
	rated  float64
	client *rpc.Client
}

// NewRemote returns a stub for the agent id, rated at rated, hosted
// behind client.
func NewRemote(id string, rated float64, client *rpc.Client) *Remote {
	return &Remote{id: id, rated: rated, client: client}
}

// ID returns the agent id.
func (r *Remote) ID() string { return r.id }

func (r *Remote) RatedCapacity() float64 { return r.rated }

// WorkerAddress returns the address of the hosting worker.
func (r *Remote) WorkerAddress() string { return r.client.Address() }

func (r *Remote) UpdateState(ctx context.Context, state schema.State) error {
	return r.client.Call(ctx, ActionUpdateState, updateStateRequest{UnitID: r.id, State: state}, nil)
}

func (r *Remote) Output(ctx context.Context) (float64, error) {
	var response outputResponse
	if err := r.client.Call(ctx, ActionGetOutput, unitRequest{UnitID: r.id}, &response); err != nil {
		return 0, err
	}
	return response.Output, nil
}

func (r *Remote) AcceptLimit(ctx context.Context, limit *float64) error {
	return r.client.Call(ctx, ActionAcceptLimit, limitMessage{UnitID: r.id, Limit: limit}, nil)
}

func (r *Remote) PendingLimit(ctx context.Context) (*float64, error) {
	var response limitMessage
	if err := r.client.Call(ctx, ActionGetPendingLimit, unitRequest{UnitID: r.id}, &response); err != nil {
		return nil, err
	}
	return response.Limit, nil
}

// RemoteRegistrar registers worker-hosted agents with the controller
// endpoint of the gateway.
type RemoteRegistrar struct {
	controller    *rpc.Client
	workerAddress string
}

// NewRemoteRegistrar returns a registrar that announces agents as
// reachable at workerAddress.
func NewRemoteRegistrar(controller *rpc.Client, workerAddress string) *RemoteRegistrar {
	return &RemoteRegistrar{controller: controller, workerAddress: workerAddress}
}

func (r *RemoteRegistrar) Register(ctx context.Context, agent Agent) error {
	return r.controller.Call(ctx, ActionRegister, RegisterRequest{
		UnitID:        agent.ID(),
		WorkerAddress: r.workerAddress,
		RatedCapacity: agent.RatedCapacity(),
	}, nil)
}

// HandleRegister serves ActionRegister on server, turning each request
// into a Remote registered with registrar.
func HandleRegister(server *rpc.Server, registrar Registrar) {
	server.Handle(ActionRegister, func(ctx context.Context, body rpc.Body) (any, error) {
		var request RegisterRequest
		if err := body.Decode(&request); err != nil {
			return nil, err
		}
		if request.UnitID == "" || request.WorkerAddress == "" {
			return nil, protocolError("register: unit_id and worker_address are required")
		}
		if !(request.RatedCapacity > 0) {
			return nil, protocolError("register: rated_capacity must be positive")
		}
		remote := NewRemote(request.UnitID, request.RatedCapacity, rpc.NewClient(request.WorkerAddress))
		return nil, registrar.Register(ctx, remote)
	})
}
