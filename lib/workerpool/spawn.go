// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/feedin-foundation/feedin/lib/worker"
)

// Process is a running worker.
type Process interface {
	// Done is closed once the worker has exited.
	Done() <-chan struct{}

	// Err returns the exit error. Only meaningful after Done.
	Err() error

	// Kill terminates the worker without waiting for it.
	Kill() error
}

// Spawner starts workers.
type Spawner interface {
	// Spawn starts worker index serving on address. It returns once
	// the worker is started, not necessarily once it accepts requests.
	Spawn(ctx context.Context, index int, address string, startTime time.Time) (Process, error)
}

// ExecSpawner runs every worker as a feedin-worker child process.
type ExecSpawner struct {
	// Binary is the path of the feedin-worker executable.
	Binary string

	// LogLevel is passed to the worker's --log-level flag.
	LogLevel string

	Logger *slog.Logger
}

func (s *ExecSpawner) Spawn(_ context.Context, index int, address string, startTime time.Time) (Process, error) {
	args := []string{
		"--address", address,
		"--start-time", startTime.UTC().Format(time.RFC3339),
	}
	if s.LogLevel != "" {
		args = append(args, "--log-level", s.LogLevel)
	}

	cmd := exec.Command(s.Binary, args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting worker %d: %w", index, err)
	}

	process := &execProcess{cmd: cmd, done: make(chan struct{})}

	// Reap in the background so an early exit unblocks the connect
	// wait instead of running into the timeout.
	go func() {
		process.err = cmd.Wait()
		close(process.done)
		exitCode := 0
		var exitErr *exec.ExitError
		if errors.As(process.err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else if process.err != nil {
			exitCode = -1
		}
		s.Logger.Info("worker process exited",
			"worker", index,
			"pid", cmd.Process.Pid,
			"exit_code", exitCode,
			"error", process.err,
		)
	}()

	s.Logger.Info("worker process started",
		"worker", index,
		"pid", cmd.Process.Pid,
		"address", address,
	)
	return process, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Done() <-chan struct{} { return p.done }

func (p *execProcess) Err() error {
	<-p.done
	return p.err
}

func (p *execProcess) Kill() error {
	return p.cmd.Process.Kill()
}

// InProcessSpawner runs every worker as a goroutine of the calling
// process. Workers still talk to the gateway over their sockets.
type InProcessSpawner struct {
	Logger *slog.Logger
}

func (s *InProcessSpawner) Spawn(_ context.Context, index int, address string, startTime time.Time) (Process, error) {
	w, err := worker.New(worker.Config{
		Address:   address,
		StartTime: startTime,
		Logger:    s.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("starting worker %d: %w", index, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	process := &goroutineProcess{
		address: w.Address(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go func() {
		process.err = w.Serve(ctx)
		close(process.done)
	}()
	return process, nil
}

type goroutineProcess struct {
	address string
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// Address returns the bound address, which differs from the requested
// one for TCP port 0.
func (p *goroutineProcess) Address() string { return p.address }

func (p *goroutineProcess) Done() <-chan struct{} { return p.done }

func (p *goroutineProcess) Err() error {
	<-p.done
	return p.err
}

func (p *goroutineProcess) Kill() error {
	p.cancel()
	return nil
}
