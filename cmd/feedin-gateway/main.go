// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Feedin-gateway serves one host simulation session: it accepts the
// host's step protocol on the configured listen address, runs the
// worker pool and the fleet controller, and pushes limits back to the
// host at --host.
//
//	feedin-gateway --host ADDR [--config FILE] [--listen ADDR]
//	               [--log-level LEVEL] [--metrics-listen ADDR]
//
// Configuration comes from --config or FEEDIN_CONFIG. The session ends
// when the host sends stop, when the host stops answering, or on
// SIGINT/SIGTERM; every worker is stopped and reaped before exit.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/feedin-foundation/feedin/lib/config"
	"github.com/feedin-foundation/feedin/lib/gateway"
	"github.com/feedin-foundation/feedin/lib/hostapi"
	"github.com/feedin-foundation/feedin/lib/logging"
	"github.com/feedin-foundation/feedin/lib/process"
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/version"
)

// finalizeTimeout bounds the teardown of workers after the session
// ends.
const finalizeTimeout = 30 * time.Second

// hostPingInterval is how often the host connection is checked.
const hostPingInterval = time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath    string
		hostAddress   string
		listen        string
		logLevel      string
		metricsListen string
		showVersion   bool
	)
	flag.StringVar(&configPath, "config", "", "path to feedin.yaml (default: $FEEDIN_CONFIG)")
	flag.StringVar(&hostAddress, "host", "", "address of the host simulation's callback server (required)")
	flag.StringVar(&listen, "listen", "", "override gateway.listen")
	flag.StringVar(&logLevel, "log-level", "", "override log.level")
	flag.StringVar(&metricsListen, "metrics-listen", "", "override metrics.listen")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		version.Print("feedin-gateway")
		return nil
	}
	if hostAddress == "" {
		return errors.New("--host is required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Gateway.Listen = listen
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if metricsListen != "" {
		cfg.Metrics.Listen = metricsListen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.Log.Level)
	logger := logging.New(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Listen != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		metricsDone, err := serveMetrics(metricsCtx, cfg.Metrics.Listen, logger)
		if err != nil {
			stopMetrics()
			return err
		}
		defer func() {
			stopMetrics()
			<-metricsDone
		}()
	}

	connectTimeout, _ := time.ParseDuration(cfg.Workers.ConnectTimeout)
	hostClient, err := rpc.Dial(ctx, hostAddress, connectTimeout)
	if err != nil {
		return fmt.Errorf("connecting to host: %w", err)
	}
	host := hostapi.NewRemoteHost(hostClient)

	gatewayConfig, err := cfg.ResolveGateway(logger)
	if err != nil {
		return err
	}
	g, err := gateway.New(gatewayConfig, host)
	if err != nil {
		return err
	}
	server, err := hostapi.NewServer(cfg.Gateway.Listen, g, logger)
	if err != nil {
		return err
	}

	serveCtx, stopServing := context.WithCancel(context.Background())
	defer stopServing()
	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(serveCtx) }()

	logger.Info("gateway running",
		"listen", server.Address(),
		"host", hostAddress,
		"version", version.Info(),
	)

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	var sessionErr error
	select {
	case <-ctx.Done():
		logger.Info("signal received")
	case <-g.Stopped():
	case err := <-host.Watch(watchCtx, hostPingInterval):
		sessionErr = fmt.Errorf("host connection lost: %w", err)
		logger.Error("host connection lost", "error", err)
	case err := <-serveDone:
		sessionErr = fmt.Errorf("serving step protocol: %w", err)
		serveDone <- nil
	}
	stopWatching()
	g.Stop()

	return errors.Join(sessionErr, shutdown(g, stopServing, serveDone, logger))
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// shutdown finalizes the session, then stops the step protocol server.
func shutdown(g *gateway.Gateway, stopServing context.CancelFunc, serveDone <-chan error, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	err := g.Finalize(ctx)
	stopServing()
	if serveErr := <-serveDone; serveErr != nil {
		err = errors.Join(err, serveErr)
	}
	logger.Info("gateway stopped", "session", g.SessionID(), "error", err)
	return err
}
