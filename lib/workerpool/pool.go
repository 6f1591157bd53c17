// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package workerpool starts the worker processes of a session, assigns
// units to them and tears them down.
//
// Assignment is static round robin: the unit created i-th lives on
// worker i mod n for the whole session. Nothing is rebalanced.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/version"
	"github.com/feedin-foundation/feedin/lib/worker"
)

// Transports for worker sockets.
const (
	TransportUnix = "unix"
	TransportTCP  = "tcp"
)

// DefaultConnectTimeout bounds the wait for a spawned worker to accept
// requests.
const DefaultConnectTimeout = 10 * time.Second

// Config configures a pool.
type Config struct {
	// Count is the number of workers. 0 means one per CPU.
	Count int

	// Transport selects unix sockets under RunDir or TCP ports on
	// TCPHost starting at BasePort.
	Transport string
	RunDir    string
	TCPHost   string
	BasePort  int

	// StartTime is the session start passed to every worker.
	StartTime time.Time

	// ConnectTimeout bounds the wait for each worker; exceeding it is
	// fatal to Start.
	ConnectTimeout time.Duration

	Spawner Spawner
	Logger  *slog.Logger
}

// Worker is one member of the pool.
type Worker struct {
	Index   int
	Address string
	Process Process
	Client  *rpc.Client
}

// Pool is the set of workers of one session.
type Pool struct {
	workers []*Worker
	logger  *slog.Logger
}

// Start spawns config.Count workers and waits until each accepts
// requests. On failure every worker already spawned is killed.
func Start(ctx context.Context, config Config) (*Pool, error) {
	count := config.Count
	if count <= 0 {
		count = runtime.NumCPU()
	}
	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	if config.Spawner == nil {
		return nil, errors.New("workerpool: spawner is required")
	}

	pool := &Pool{logger: config.Logger}
	for index := 0; index < count; index++ {
		address, err := workerAddress(config, index)
		if err != nil {
			pool.kill()
			return nil, err
		}
		process, err := config.Spawner.Spawn(ctx, index, address, config.StartTime)
		if err != nil {
			pool.kill()
			return nil, err
		}
		if bound, ok := process.(interface{ Address() string }); ok {
			address = bound.Address()
		}
		pool.workers = append(pool.workers, &Worker{Index: index, Address: address, Process: process})
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, w := range pool.workers {
		group.Go(func() error {
			client, err := connect(groupCtx, w, timeout)
			if err != nil {
				return err
			}
			w.Client = client

			var status worker.Status
			if err := client.Call(groupCtx, worker.ActionStatus, nil, &status); err != nil {
				return fmt.Errorf("worker %d status: %w", w.Index, err)
			}
			if err := version.Check(fmt.Sprintf("worker %d", w.Index), status.Version); err != nil {
				pool.logger.Warn("worker version mismatch", "worker", w.Index, "error", err)
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		pool.kill()
		return nil, err
	}

	pool.logger.Info("worker pool started", "workers", count, "transport", config.Transport)
	return pool, nil
}

// connect dials w, giving up early if its process exits.
func connect(ctx context.Context, w *Worker, timeout time.Duration) (*rpc.Client, error) {
	dialCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.Process.Done():
			cancel()
		case <-dialCtx.Done():
		}
	}()

	client, err := rpc.Dial(dialCtx, w.Address, timeout)
	if err != nil {
		select {
		case <-w.Process.Done():
			return nil, fmt.Errorf("worker %d exited before accepting requests: %w (exit: %v)",
				w.Index, rpc.ErrConnectionLost, w.Process.Err())
		default:
		}
		return nil, fmt.Errorf("worker %d: %w", w.Index, err)
	}
	return client, nil
}

func workerAddress(config Config, index int) (string, error) {
	switch config.Transport {
	case TransportUnix, "":
		if config.RunDir == "" {
			return "", errors.New("workerpool: run dir is required for unix transport")
		}
		return rpc.JoinAddress("unix", filepath.Join(config.RunDir, fmt.Sprintf("worker-%d.sock", index))), nil
	case TransportTCP:
		port := 0
		if config.BasePort > 0 {
			port = config.BasePort + index
		}
		return rpc.JoinAddress("tcp", net.JoinHostPort(config.TCPHost, strconv.Itoa(port))), nil
	default:
		return "", fmt.Errorf("workerpool: unknown transport %q", config.Transport)
	}
}

// Len returns the number of workers.
func (p *Pool) Len() int {
	return len(p.workers)
}

// Workers returns the workers in index order.
func (p *Pool) Workers() []*Worker {
	return p.workers
}

// Assign returns the worker for the unit created at position index.
func (p *Pool) Assign(index int) *Worker {
	return p.workers[index%len(p.workers)]
}

// SetTime broadcasts simulated time (seconds since the session start)
// to every worker.
func (p *Pool) SetTime(ctx context.Context, seconds int64) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		group.Go(func() error {
			if err := w.Client.Call(groupCtx, worker.ActionSetTime, worker.SetTimeRequest{Time: seconds}, nil); err != nil {
				return fmt.Errorf("setting time on worker %d: %w", w.Index, err)
			}
			return nil
		})
	}
	return group.Wait()
}

// Status queries every worker.
func (p *Pool) Status(ctx context.Context) ([]worker.Status, error) {
	statuses := make([]worker.Status, len(p.workers))
	group, groupCtx := errgroup.WithContext(ctx)
	for i, w := range p.workers {
		group.Go(func() error {
			return w.Client.Call(groupCtx, worker.ActionStatus, nil, &statuses[i])
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// Shutdown asks every worker to stop and waits for all of them to
// exit. A worker that has not exited when ctx is done is killed. The
// waits run concurrently; Shutdown returns once every worker is gone.
func (p *Pool) Shutdown(ctx context.Context) error {
	var group errgroup.Group
	for _, w := range p.workers {
		group.Go(func() error {
			return p.stopWorker(ctx, w)
		})
	}
	err := group.Wait()
	p.logger.Info("worker pool stopped", "workers", len(p.workers))
	return err
}

func (p *Pool) stopWorker(ctx context.Context, w *Worker) error {
	var stopErr error
	if w.Client != nil {
		stopErr = w.Client.Call(ctx, worker.ActionStop, nil, nil)
		if stopErr != nil {
			p.logger.Warn("stop request failed", "worker", w.Index, "error", stopErr)
		}
	}

	select {
	case <-w.Process.Done():
	case <-ctx.Done():
		w.Process.Kill()
		<-w.Process.Done()
		return fmt.Errorf("worker %d did not exit in time: %w", w.Index, ctx.Err())
	}

	// A worker that exited on its own cannot answer the stop request.
	if stopErr != nil && !errors.Is(stopErr, rpc.ErrConnectionLost) {
		return fmt.Errorf("stopping worker %d: %w", w.Index, stopErr)
	}
	return nil
}

// kill terminates every spawned worker and waits for it.
func (p *Pool) kill() {
	for _, w := range p.workers {
		w.Process.Kill()
	}
	for _, w := range p.workers {
		<-w.Process.Done()
	}
}
