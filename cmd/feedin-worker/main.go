// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Feedin-worker hosts unit agents for a feedin gateway. The gateway's
// worker pool starts one per worker slot; it is not meant to be run by
// hand.
//
//	feedin-worker --address ADDR --start-time RFC3339 [--log-level LEVEL]
//
// ADDR is a socket path or "tcp:host:port". The worker exits when the
// gateway sends worker.stop, on SIGINT or SIGTERM, and (on Linux) when
// the gateway process dies.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedin-foundation/feedin/lib/logging"
	"github.com/feedin-foundation/feedin/lib/process"
	"github.com/feedin-foundation/feedin/lib/version"
	"github.com/feedin-foundation/feedin/lib/worker"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		address     string
		startTime   string
		logLevel    string
		showVersion bool
	)
	flag.StringVar(&address, "address", "", "socket path or tcp:host:port to serve on (required)")
	flag.StringVar(&startTime, "start-time", "", "session start time, RFC 3339 (required)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warning, error, critical")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("feedin-worker")
		return nil
	}
	if address == "" {
		return errors.New("--address is required")
	}
	start, err := time.Parse(time.RFC3339, startTime)
	if err != nil {
		return fmt.Errorf("--start-time: %w", err)
	}
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := logging.New(level).With("worker", address)

	if err := process.DieWithParent(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("worker starting", "start_time", start, "version", version.Info())
	if err := worker.Run(ctx, worker.Config{Address: address, StartTime: start, Logger: logger}); err != nil {
		return err
	}
	logger.Info("worker stopped")
	return nil
}
