// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package workerpool

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/testutil"
)

var sessionStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func startPool(t *testing.T, count int) *Pool {
	t.Helper()
	pool, err := Start(context.Background(), Config{
		Count:          count,
		Transport:      TransportUnix,
		RunDir:         testutil.SocketDir(t),
		StartTime:      sessionStart,
		ConnectTimeout: 5 * time.Second,
		Spawner:        &InProcessSpawner{Logger: testLogger()},
		Logger:         testLogger(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return pool
}

func TestAssignRoundRobin(t *testing.T) {
	pool := startPool(t, 3)
	defer pool.Shutdown(context.Background())

	if pool.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", pool.Len())
	}
	for i := 0; i < 10; i++ {
		if got := pool.Assign(i).Index; got != i%3 {
			t.Errorf("Assign(%d) = worker %d, want %d", i, got, i%3)
		}
	}
}

func TestSetTimeReachesEveryWorker(t *testing.T) {
	ctx := context.Background()
	pool := startPool(t, 2)
	defer pool.Shutdown(ctx)

	if err := pool.SetTime(ctx, 1800); err != nil {
		t.Fatalf("SetTime: %v", err)
	}
	statuses, err := pool.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	for i, status := range statuses {
		if status.Time != 1800 {
			t.Errorf("worker %d time = %d, want 1800", i, status.Time)
		}
		if status.Address != pool.Workers()[i].Address {
			t.Errorf("worker %d address = %q, want %q", i, status.Address, pool.Workers()[i].Address)
		}
	}
}

func TestShutdownWaitsForEveryWorker(t *testing.T) {
	pool := startPool(t, 3)
	if err := pool.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	for _, w := range pool.Workers() {
		select {
		case <-w.Process.Done():
		default:
			t.Errorf("worker %d still running after Shutdown", w.Index)
		}
	}
}

func TestShutdownToleratesExitedWorker(t *testing.T) {
	pool := startPool(t, 2)
	dead := pool.Workers()[0]
	dead.Process.Kill()
	<-dead.Process.Done()

	if err := pool.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown with an exited worker = %v, want nil", err)
	}
}

// exitingSpawner starts workers that exit immediately.
type exitingSpawner struct{}

func (exitingSpawner) Spawn(context.Context, int, string, time.Time) (Process, error) {
	process := &goroutineProcess{cancel: func() {}, done: make(chan struct{}), err: errors.New("exit status 2")}
	close(process.done)
	return process, nil
}

func TestStartFailsFastWhenWorkerExits(t *testing.T) {
	started := time.Now()
	_, err := Start(context.Background(), Config{
		Count:          2,
		RunDir:         testutil.SocketDir(t),
		StartTime:      sessionStart,
		ConnectTimeout: time.Minute,
		Spawner:        exitingSpawner{},
		Logger:         testLogger(),
	})
	if !errors.Is(err, rpc.ErrConnectionLost) {
		t.Errorf("Start = %v, want ErrConnectionLost", err)
	}
	if time.Since(started) > 10*time.Second {
		t.Error("Start waited for the connect timeout despite the worker exiting")
	}
}

func TestStartWithMissingBinary(t *testing.T) {
	_, err := Start(context.Background(), Config{
		Count:     1,
		RunDir:    t.TempDir(),
		StartTime: sessionStart,
		Spawner:   &ExecSpawner{Binary: filepath.Join(t.TempDir(), "no-such-worker"), Logger: testLogger()},
		Logger:    testLogger(),
	})
	if err == nil {
		t.Error("Start with a missing worker binary succeeded")
	}
}

func TestWorkerAddress(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		index  int
		want   string
	}{
		{"unix", Config{Transport: TransportUnix, RunDir: "/run/feedin"}, 2, "unix:/run/feedin/worker-2.sock"},
		{"default transport", Config{RunDir: "/tmp/s"}, 0, "unix:/tmp/s/worker-0.sock"},
		{"tcp base port", Config{Transport: TransportTCP, TCPHost: "localhost", BasePort: 5679}, 3, "tcp:localhost:5682"},
		{"tcp ephemeral", Config{Transport: TransportTCP, TCPHost: "127.0.0.1"}, 1, "tcp:127.0.0.1:0"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := workerAddress(test.config, test.index)
			if err != nil {
				t.Fatalf("workerAddress: %v", err)
			}
			if got != test.want {
				t.Errorf("workerAddress = %q, want %q", got, test.want)
			}
		})
	}

	if _, err := workerAddress(Config{Transport: "udp"}, 0); err == nil {
		t.Error("unknown transport accepted")
	}
	if _, err := workerAddress(Config{Transport: TransportUnix}, 0); err == nil {
		t.Error("unix transport without run dir accepted")
	}
}

func TestTCPWorkersOnEphemeralPorts(t *testing.T) {
	ctx := context.Background()
	pool, err := Start(ctx, Config{
		Count:     2,
		Transport: TransportTCP,
		TCPHost:   "127.0.0.1",
		StartTime: sessionStart,
		Spawner:   &InProcessSpawner{Logger: testLogger()},
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Shutdown(ctx)

	if pool.Workers()[0].Address == pool.Workers()[1].Address {
		t.Errorf("workers share address %q", pool.Workers()[0].Address)
	}
	if err := pool.SetTime(ctx, 0); err != nil {
		t.Errorf("SetTime: %v", err)
	}
}
