// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/feedin-foundation/feedin/lib/testutil"
)

var errTestRejected = errors.New("rejected by test handler")

func init() {
	RegisterCode("test_rejected", errTestRejected)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testSocketPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(testutil.SocketDir(t), "test.sock")
}

type echoArgs struct {
	UnitID string  `cbor:"unit_id"`
	Value  float64 `cbor:"value"`
}

// startServer runs server until the test ends and returns its
// address once it is listening.
func startServer(t *testing.T, server *Server) string {
	t.Helper()
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Serve: %v", err)
		}
	})
	return server.Address()
}

func newEchoServer(t *testing.T, address string) *Server {
	t.Helper()
	server := NewServer(address, testLogger())
	server.Handle("echo", func(ctx context.Context, body Body) (any, error) {
		var args echoArgs
		if err := body.Decode(&args); err != nil {
			return nil, err
		}
		return args, nil
	})
	server.Handle("reject", func(ctx context.Context, body Body) (any, error) {
		return nil, errTestRejected
	})
	server.Handle("fail", func(ctx context.Context, body Body) (any, error) {
		return nil, errors.New("plain failure")
	})
	server.Handle("bulk", func(ctx context.Context, body Body) (any, error) {
		var values map[string]float64
		if err := body.Decode(&values); err != nil {
			return nil, err
		}
		return values, nil
	})
	return server
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		address, network, target string
	}{
		{"unix:/run/feedin/w0.sock", "unix", "/run/feedin/w0.sock"},
		{"/tmp/w1.sock", "unix", "/tmp/w1.sock"},
		{"tcp:localhost:5679", "tcp", "localhost:5679"},
		{"localhost:5678", "tcp", "localhost:5678"},
	}
	for _, test := range tests {
		network, target, err := SplitAddress(test.address)
		if err != nil {
			t.Fatalf("SplitAddress(%q): %v", test.address, err)
		}
		if network != test.network || target != test.target {
			t.Errorf("SplitAddress(%q) = %q, %q; want %q, %q",
				test.address, network, target, test.network, test.target)
		}
	}
	if _, _, err := SplitAddress(""); err == nil {
		t.Error("SplitAddress(\"\") succeeded, want error")
	}
}

func TestCallRoundtrip(t *testing.T) {
	address := startServer(t, newEchoServer(t, testSocketPath(t)))
	client := NewClient(address)

	var result echoArgs
	err := client.Call(context.Background(), "echo", echoArgs{UnitID: "Agent_1", Value: 6}, &result)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.UnitID != "Agent_1" || result.Value != 6 {
		t.Errorf("result = %+v", result)
	}
}

func TestCallOverTCP(t *testing.T) {
	address := startServer(t, newEchoServer(t, "tcp:127.0.0.1:0"))
	if !strings.HasPrefix(address, "tcp:127.0.0.1:") || strings.HasSuffix(address, ":0") {
		t.Fatalf("Address() = %q, want bound tcp address", address)
	}

	var result echoArgs
	if err := NewClient(address).Call(context.Background(), "echo", echoArgs{UnitID: "x"}, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if result.UnitID != "x" {
		t.Errorf("result = %+v", result)
	}
}

func TestCallLargePayload(t *testing.T) {
	address := startServer(t, newEchoServer(t, testSocketPath(t)))

	values := make(map[string]float64)
	for i := 0; i < 500; i++ {
		values["Agent_"+strings.Repeat("0", i%5)+string(rune('a'+i%26))+string(rune('a'+i/26))] = float64(i)
	}
	var result map[string]float64
	if err := NewClient(address).Call(context.Background(), "bulk", values, &result); err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(result) != len(values) {
		t.Errorf("got %d values back, want %d", len(result), len(values))
	}
}

func TestCallErrorCodeCrossesBoundary(t *testing.T) {
	address := startServer(t, newEchoServer(t, testSocketPath(t)))
	err := NewClient(address).Call(context.Background(), "reject", nil, nil)

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error = %v (%T), want *CallError", err, err)
	}
	if callErr.Code != "test_rejected" {
		t.Errorf("Code = %q, want test_rejected", callErr.Code)
	}
	if !errors.Is(err, errTestRejected) {
		t.Errorf("errors.Is(%v, errTestRejected) = false", err)
	}
	if errors.Is(err, ErrConnectionLost) {
		t.Error("handler failure must not be reported as connection loss")
	}
}

func TestCallPlainHandlerError(t *testing.T) {
	address := startServer(t, newEchoServer(t, testSocketPath(t)))
	err := NewClient(address).Call(context.Background(), "fail", nil, nil)

	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("error = %v, want *CallError", err)
	}
	if callErr.Code != "" || callErr.Message != "plain failure" {
		t.Errorf("CallError = %+v", callErr)
	}
	if callErr.Unwrap() != nil {
		t.Errorf("Unwrap() = %v, want nil", callErr.Unwrap())
	}
}

func TestCallUnknownAction(t *testing.T) {
	address := startServer(t, newEchoServer(t, testSocketPath(t)))
	err := NewClient(address).Call(context.Background(), "no-such-action", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown action") {
		t.Errorf("error = %v, want unknown action", err)
	}
}

func TestCallWithoutServerIsConnectionLost(t *testing.T) {
	err := NewClient(testSocketPath(t)).Call(context.Background(), "echo", nil, nil)
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("error = %v, want ErrConnectionLost", err)
	}
}

func TestCallCancelledContext(t *testing.T) {
	server := NewServer(testSocketPath(t), testLogger())
	release := make(chan struct{})
	server.Handle("block", func(ctx context.Context, body Body) (any, error) {
		<-release
		return nil, nil
	})
	address := startServer(t, server)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := NewClient(address).Call(ctx, "block", nil, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want context.DeadlineExceeded", err)
	}
	if errors.Is(err, ErrConnectionLost) {
		t.Error("cancellation must not be reported as connection loss")
	}
}

func TestDialWaitsForLateServer(t *testing.T) {
	socketPath := testSocketPath(t)
	server := newEchoServer(t, socketPath)

	go func() {
		time.Sleep(50 * time.Millisecond)
		startServer(t, server)
	}()

	client, err := Dial(context.Background(), socketPath, 5*time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if client.Address() != socketPath {
		t.Errorf("Address() = %q, want %q", client.Address(), socketPath)
	}
}

func TestDialTimeout(t *testing.T) {
	_, err := Dial(context.Background(), testSocketPath(t), 50*time.Millisecond)
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Dial error = %v, want ErrConnectionLost", err)
	}
}

func TestResponseTimeout(t *testing.T) {
	server := NewServer(testSocketPath(t), testLogger())
	server.Handle("slow", func(ctx context.Context, body Body) (any, error) {
		time.Sleep(100 * time.Millisecond)
		return nil, nil
	})
	address := startServer(t, server)
	ctx := context.Background()

	short := NewClient(address).WithResponseTimeout(20 * time.Millisecond)
	if err := short.Call(ctx, "slow", nil, nil); !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Call with a 20ms response timeout = %v, want ErrConnectionLost", err)
	}

	unbounded := short.WithResponseTimeout(0)
	if unbounded.Address() != address {
		t.Errorf("Address() = %q, want %q", unbounded.Address(), address)
	}
	if err := unbounded.Call(ctx, "slow", nil, nil); err != nil {
		t.Errorf("Call without a response timeout = %v, want nil", err)
	}
}

func TestMonitorReportsLoss(t *testing.T) {
	socketPath := testSocketPath(t)
	server := newEchoServer(t, socketPath)
	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	serveCtx, stopServer := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- server.Serve(serveCtx) }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	lost := NewClient(socketPath).Monitor(ctx, 10*time.Millisecond)

	select {
	case err := <-lost:
		t.Fatalf("Monitor reported loss while server is up: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	stopServer()
	<-served

	err := testutil.RequireReceive(t, lost, 5*time.Second, "Monitor did not report loss")
	if !errors.Is(err, ErrConnectionLost) {
		t.Errorf("Monitor error = %v, want ErrConnectionLost", err)
	}
}

func TestRegisterCodeConflictPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("RegisterCode with a conflicting sentinel did not panic")
		}
	}()
	RegisterCode("test_rejected", errors.New("other"))
}
