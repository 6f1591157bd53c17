// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package hostapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/feedin-foundation/feedin/lib/clock"
	"github.com/feedin-foundation/feedin/lib/gateway"
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
	"github.com/feedin-foundation/feedin/lib/testutil"
	"github.com/feedin-foundation/feedin/lib/workerpool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

type fakeHost struct {
	mu     sync.Mutex
	pushes []schema.LimitPush
}

func (h *fakeHost) SetData(_ context.Context, push schema.LimitPush) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pushes = append(h.pushes, push)
	return nil
}

func (h *fakeHost) RelatedEntities(_ context.Context, ids []string) (map[string][]string, error) {
	relations := make(map[string][]string, len(ids))
	for _, id := range ids {
		relations[id] = []string{"WecsSim-0." + id}
	}
	return relations, nil
}

func serve(t *testing.T, server interface{ Serve(context.Context) error }) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// startSession wires a host process and a gateway process together
// over sockets and returns the host's view of both.
func startSession(t *testing.T) (*Client, *fakeHost, *gateway.Gateway) {
	t.Helper()
	address, host, g := serveGateway(t, gateway.Config{})
	return NewClient(rpc.NewClient(address)), host, g
}

// serveGateway starts a host and a gateway built from config and
// returns the address of the gateway's step protocol server.
func serveGateway(t *testing.T, config gateway.Config) (string, *fakeHost, *gateway.Gateway) {
	t.Helper()
	dir := testutil.SocketDir(t)

	host := &fakeHost{}
	hostServer := rpc.NewServer(filepath.Join(dir, "host.sock"), testLogger())
	HandleHost(hostServer, host)
	if err := hostServer.Listen(); err != nil {
		t.Fatalf("host Listen: %v", err)
	}
	serve(t, hostServer)

	config.StepSize = 900
	config.Workers = workerpool.Config{Count: 2, RunDir: dir}
	config.Logger = testLogger()
	g, err := gateway.New(config, NewRemoteHost(rpc.NewClient(hostServer.Address())))
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	t.Cleanup(func() {
		if err := g.Finalize(context.Background()); err != nil {
			t.Errorf("Finalize: %v", err)
		}
	})

	server, err := NewServer(filepath.Join(dir, "gateway.sock"), g, testLogger())
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	serve(t, server)

	return server.Address(), host, g
}

func TestSessionOverSockets(t *testing.T) {
	ctx := context.Background()
	client, host, g := startSession(t)

	meta, err := client.Init(ctx, gateway.InitRequest{
		SessionID:  "FeedinSim-0",
		StartTime:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Controller: schema.ControllerConfig{FleetLimit: 15, CheckInterval: 900},
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, ok := meta.Models[schema.ModelUnitAgent]; !ok {
		t.Errorf("meta does not declare %s: %+v", schema.ModelUnitAgent, meta)
	}

	params := schema.Params{RatedCapacity: 10, RatedSpeed: 12, MinSpeed: 3, MaxSpeed: 25}
	entities, err := client.Create(ctx, 3, schema.ModelUnitAgent, params)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(entities) != 3 || entities[2].ID != "Agent_2" {
		t.Fatalf("entities = %+v", entities)
	}
	if err := client.SetupDone(ctx); err != nil {
		t.Fatalf("SetupDone: %v", err)
	}

	inputs := schema.Inputs{}
	for i, output := range []float64{10, 10, 5} {
		id := fmt.Sprintf("Agent_%d", i)
		inputs[id] = map[string]map[string]float64{schema.AttrOutput: {"WecsSim-0." + id: output}}
	}
	next, err := client.Step(ctx, 0, inputs)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if next != 900 {
		t.Errorf("next = %d, want 900", next)
	}

	host.mu.Lock()
	push := host.pushes[len(host.pushes)-1]
	host.mu.Unlock()
	var sum float64
	for id, units := range push {
		limit := units["WecsSim-0."+id][schema.AttrLimit]
		sum += limit
	}
	if math.Abs(sum-15) >= 0.01 {
		t.Errorf("pushed limits sum to %v, want 15", sum)
	}

	if err := client.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	testutil.RequireClosed(t, g.Stopped(), 5*time.Second, "gateway not stopped")
}

func TestErrorsCrossTheWire(t *testing.T) {
	ctx := context.Background()
	client, _, _ := startSession(t)

	_, err := client.Create(ctx, 1, schema.ModelUnitAgent, schema.Params{RatedCapacity: 1})
	if !errors.Is(err, schema.ErrProtocol) {
		t.Errorf("Create before init = %v, want ErrProtocol", err)
	}

	_, err = client.Init(ctx, gateway.InitRequest{
		SessionID:  "FeedinSim-0",
		StartTime:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Controller: schema.ControllerConfig{FleetLimit: 15},
	})
	if !errors.Is(err, schema.ErrProtocol) {
		t.Errorf("Init with zero check interval = %v, want ErrProtocol", err)
	}
}

func TestWatchReportsHostLoss(t *testing.T) {
	host := NewRemoteHost(rpc.NewClient(filepath.Join(t.TempDir(), "gone.sock")))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err := testutil.RequireReceive(t, host.Watch(ctx, 10*time.Millisecond), 5*time.Second, "Watch did not report the missing host")
	if !errors.Is(err, rpc.ErrConnectionLost) {
		t.Errorf("Watch = %v, want ErrConnectionLost", err)
	}
}

func outputInputs(outputs ...float64) schema.Inputs {
	inputs := schema.Inputs{}
	for i, output := range outputs {
		id := fmt.Sprintf("Agent_%d", i)
		inputs[id] = map[string]map[string]float64{schema.AttrOutput: {"WecsSim-0." + id: output}}
	}
	return inputs
}

func TestBudgetExceededCrossesTheWire(t *testing.T) {
	ctx := context.Background()
	wall := clock.Fake(time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC))
	address, _, g := serveGateway(t, gateway.Config{Clock: wall})

	setup := NewClient(rpc.NewClient(address))
	_, err := setup.Init(ctx, gateway.InitRequest{
		SessionID:  "FeedinSim-0",
		StartTime:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Controller: schema.ControllerConfig{FleetLimit: 15, CheckInterval: 1800},
	})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	params := schema.Params{RatedCapacity: 10, RatedSpeed: 12, MinSpeed: 3, MaxSpeed: 25}
	if _, err := setup.Create(ctx, 1, schema.ModelUnitAgent, params); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := setup.SetupDone(ctx); err != nil {
		t.Fatalf("SetupDone: %v", err)
	}
	if _, err := setup.Step(ctx, 0, outputInputs(5)); err != nil {
		t.Fatalf("Step(0): %v", err)
	}

	// The step below outlives this client's response timeout while the
	// gateway is still inside its budget.
	client := NewClient(rpc.NewClient(address).WithResponseTimeout(20 * time.Millisecond))
	pending := wall.PendingCount()
	result := make(chan error, 1)
	go func() {
		_, err := client.Step(ctx, 900, outputInputs(5))
		result <- err
	}()
	wall.WaitForTimers(pending + 1)
	time.Sleep(100 * time.Millisecond)
	wall.Advance(15 * time.Minute)

	err = testutil.RequireReceive(t, result, 5*time.Second, "step did not return after the budget elapsed")
	if !errors.Is(err, schema.ErrBudgetExceeded) {
		t.Errorf("Step(900) = %v, want ErrBudgetExceeded", err)
	}
	if errors.Is(err, rpc.ErrConnectionLost) {
		t.Errorf("Step(900) = %v, want no ErrConnectionLost", err)
	}
	testutil.RequireClosed(t, g.Stopped(), 5*time.Second, "gateway not stopped after the failed step")
}
