// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
	"github.com/feedin-foundation/feedin/lib/testutil"
)

var sessionStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func startWorker(t *testing.T) (*rpc.Client, <-chan error) {
	t.Helper()
	worker, err := New(Config{
		Address:   filepath.Join(testutil.SocketDir(t), "worker.sock"),
		StartTime: sessionStart,
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Serve(ctx) }()
	t.Cleanup(cancel)
	return rpc.NewClient(worker.Address()), done
}

func TestStatusAndSetTime(t *testing.T) {
	ctx := context.Background()
	client, _ := startWorker(t)

	var status Status
	if err := client.Call(ctx, ActionStatus, nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Time != -1 || status.Agents != 0 {
		t.Errorf("initial status = %+v, want time -1 and no agents", status)
	}

	if err := client.Call(ctx, ActionSetTime, SetTimeRequest{Time: 900}, nil); err != nil {
		t.Fatalf("set_time: %v", err)
	}
	if err := client.Call(ctx, ActionStatus, nil, &status); err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.Time != 900 {
		t.Errorf("Time = %d, want 900", status.Time)
	}

	err := client.Call(ctx, ActionSetTime, SetTimeRequest{Time: 0}, nil)
	if !errors.Is(err, schema.ErrProtocol) {
		t.Errorf("set_time backwards = %v, want ErrProtocol", err)
	}
}

func TestStopEndsServe(t *testing.T) {
	client, done := startWorker(t)
	if err := client.Call(context.Background(), ActionStop, nil, nil); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := testutil.RequireReceive(t, done, 5*time.Second, "worker did not stop"); err != nil {
		t.Errorf("Serve = %v, want nil", err)
	}
	if err := client.Call(context.Background(), ActionStatus, nil, nil); !errors.Is(err, rpc.ErrConnectionLost) {
		t.Errorf("status after stop = %v, want ErrConnectionLost", err)
	}
}

func TestNewRequiresAddressAndStart(t *testing.T) {
	if _, err := New(Config{StartTime: sessionStart, Logger: testLogger()}); err == nil {
		t.Error("New without address succeeded")
	}
	if _, err := New(Config{Address: filepath.Join(t.TempDir(), "w.sock"), Logger: testLogger()}); err == nil {
		t.Error("New without start time succeeded")
	}
}
