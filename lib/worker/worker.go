// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package worker is the body of a feedin worker process: an RPC
// server hosting unit agents plus a local simulated clock kept in
// step with the gateway.
//
// A worker is started by the gateway's pool, either as a separate
// feedin-worker process or in-process for tests and small scenarios.
// It serves until its context is cancelled or it receives
// [ActionStop].
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/feedin-foundation/feedin/lib/agent"
	"github.com/feedin-foundation/feedin/lib/clock"
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
	"github.com/feedin-foundation/feedin/lib/version"
)

// Worker management actions.
const (
	ActionSetTime = "worker.set_time"
	ActionStatus  = "worker.status"
	ActionStop    = "worker.stop"
)

// SetTimeRequest carries simulated time as seconds since the session
// start.
type SetTimeRequest struct {
	Time int64 `cbor:"time"`
}

// Status describes a running worker.
type Status struct {
	Address string `cbor:"address"`
	Time    int64  `cbor:"time"`
	Agents  int    `cbor:"agents"`

	// Version is the worker binary's version.Info.
	Version string `cbor:"version"`
}

// Config configures a worker.
type Config struct {
	// Address is the RPC address to serve on.
	Address string

	// StartTime is the session start shared with the gateway.
	StartTime time.Time

	Logger *slog.Logger
}

// Worker hosts agents for one session.
type Worker struct {
	sim    *clock.Sim
	host   *agent.Host
	server *rpc.Server
	logger *slog.Logger

	stopOnce sync.Once
	stopped  chan struct{}
}

// New creates a worker and binds its address.
func New(config Config) (*Worker, error) {
	if config.Address == "" {
		return nil, errors.New("worker address is required")
	}
	if config.StartTime.IsZero() {
		return nil, errors.New("worker start time is required")
	}

	logger := config.Logger.With("worker", config.Address)
	worker := &Worker{
		sim:     clock.NewSim(config.StartTime),
		server:  rpc.NewServer(config.Address, logger),
		logger:  logger,
		stopped: make(chan struct{}),
	}
	if err := worker.server.Listen(); err != nil {
		return nil, err
	}
	worker.host = agent.NewHost(worker.server.Address(), logger)
	worker.host.Handle(worker.server)
	worker.server.Handle(ActionSetTime, worker.handleSetTime)
	worker.server.Handle(ActionStatus, worker.handleStatus)
	worker.server.Handle(ActionStop, worker.handleStop)
	return worker, nil
}

// Address returns the bound RPC address.
func (w *Worker) Address() string {
	return w.server.Address()
}

// Serve runs the worker until ctx is cancelled or a stop request
// arrives. In-flight requests, including the stop request itself, are
// answered before Serve returns.
func (w *Worker) Serve(ctx context.Context) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopped:
			cancel()
		case <-serveCtx.Done():
		}
	}()

	w.logger.Info("worker serving", "start_time", w.sim.Start())
	err := w.server.Serve(serveCtx)
	w.logger.Info("worker stopped", "agents", w.host.Len())
	return err
}

// Run creates a worker from config and serves it.
func Run(ctx context.Context, config Config) error {
	worker, err := New(config)
	if err != nil {
		return err
	}
	return worker.Serve(ctx)
}

func (w *Worker) handleSetTime(_ context.Context, body rpc.Body) (any, error) {
	var request SetTimeRequest
	if err := body.Decode(&request); err != nil {
		return nil, err
	}
	if !w.sim.SetOffset(time.Duration(request.Time) * time.Second) {
		return nil, fmt.Errorf("%w: simulated time %ds is before the worker's %v",
			schema.ErrProtocol, request.Time, w.sim.Offset())
	}
	return nil, nil
}

func (w *Worker) handleStatus(context.Context, rpc.Body) (any, error) {
	return Status{
		Address: w.Address(),
		Time:    int64(w.sim.Offset() / time.Second),
		Agents:  w.host.Len(),
		Version: version.Info(),
	}, nil
}

func (w *Worker) handleStop(context.Context, rpc.Body) (any, error) {
	w.stopOnce.Do(func() { close(w.stopped) })
	return nil, nil
}
