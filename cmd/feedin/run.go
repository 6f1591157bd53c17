// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/feedin-foundation/feedin/lib/config"
	"github.com/feedin-foundation/feedin/lib/hostapi"
	"github.com/feedin-foundation/feedin/lib/logging"
	"github.com/feedin-foundation/feedin/lib/process"
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/scenario"
	"github.com/feedin-foundation/feedin/lib/wecs"
)

type runParams struct {
	gateway      string
	hostListen   string
	workerBinary string
	sessionID    string
	logLevel     string
	json         bool
	connect      time.Duration
}

func runCommand(stdout io.Writer) *Command {
	var params runParams
	return &Command{
		Name:    "run",
		Summary: "Run a scenario against a gateway",
		Description: "Run a JSONC scenario. By default the gateway and its workers run inside\n" +
			"this process. With --gateway the scenario drives a running feedin-gateway,\n" +
			"which must have been started with --host pointing at --host-listen.",
		Usage: "feedin run [flags] SCENARIO.jsonc",
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("run", pflag.ContinueOnError)
			flagSet.StringVar(&params.gateway, "gateway", "", "address of a running feedin-gateway")
			flagSet.StringVar(&params.hostListen, "host-listen", "", "address the host callbacks listen on (with --gateway)")
			flagSet.StringVar(&params.workerBinary, "worker-binary", "", "feedin-worker executable for scenarios with exec workers (default: PATH)")
			flagSet.StringVar(&params.sessionID, "session-id", "", "session id (default: generated)")
			flagSet.StringVar(&params.logLevel, "log-level", "warning", "log level: debug, info, warning, error, critical")
			flagSet.BoolVar(&params.json, "json", false, "print the report as JSON")
			flagSet.DurationVar(&params.connect, "connect-timeout", 10*time.Second, "how long to wait for --gateway to answer")
			return flagSet
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return &process.ExitError{Code: 2, Err: errors.New("usage: feedin run [flags] SCENARIO.jsonc")}
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runScenario(ctx, args[0], params, stdout)
		},
	}
}

func runScenario(ctx context.Context, path string, params runParams, stdout io.Writer) error {
	level, err := logging.ParseLevel(params.logLevel)
	if err != nil {
		return fmt.Errorf("--log-level: %w", err)
	}
	logger := logging.New(level).With("command", "run")

	s, err := scenario.ReadFile(path)
	if err != nil {
		return err
	}
	sessionID := params.sessionID
	if sessionID == "" {
		sessionID = scenario.NewSessionID()
	}

	var report *scenario.Report
	if params.gateway == "" {
		if s.Workers.Exec && params.workerBinary == "" {
			if params.workerBinary, err = config.Default().BinaryPath(config.WorkerBinary); err != nil {
				return err
			}
		}
		report, err = scenario.RunInProcess(ctx, s, scenario.Options{
			SessionID:    sessionID,
			WorkerBinary: params.workerBinary,
			LogLevel:     params.logLevel,
			Logger:       logger,
		})
	} else {
		report, err = runRemote(ctx, s, params, sessionID, logger)
	}
	if err != nil {
		return err
	}
	return printReport(stdout, s, report, params.json)
}

// runRemote serves the host callbacks on params.hostListen and drives
// the gateway at params.gateway.
func runRemote(ctx context.Context, s *scenario.Scenario, params runParams, sessionID string, logger *slog.Logger) (*scenario.Report, error) {
	if params.hostListen == "" {
		return nil, errors.New("--host-listen is required with --gateway")
	}
	host, err := scenario.NewHost(s.Params())
	if err != nil {
		return nil, err
	}
	series, err := wecs.OpenSeries(s.WindFile)
	if err != nil {
		return nil, err
	}
	defer series.Close()

	hostServer := rpc.NewServer(params.hostListen, logger)
	hostapi.HandleHost(hostServer, host)
	if err := hostServer.Listen(); err != nil {
		return nil, err
	}
	serveCtx, stopServing := context.WithCancel(ctx)
	serveDone := make(chan error, 1)
	go func() { serveDone <- hostServer.Serve(serveCtx) }()
	defer func() {
		stopServing()
		<-serveDone
	}()

	gatewayClient, err := rpc.Dial(ctx, params.gateway, params.connect)
	if err != nil {
		return nil, fmt.Errorf("connecting to gateway: %w", err)
	}
	session := hostapi.NewClient(gatewayClient)

	report, runErr := scenario.Run(ctx, s, session, host, series, sessionID, logger)
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := session.Stop(stopCtx); err != nil && runErr == nil {
		return nil, fmt.Errorf("stopping session: %w", err)
	}
	return report, runErr
}

func printReport(w io.Writer, s *scenario.Scenario, report *scenario.Report, asJSON bool) error {
	if asJSON {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	}

	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "time\toutput\tlimit\tcapped\t\n")
	for _, step := range report.Steps {
		capped := ""
		if step.Capped {
			capped = "yes"
		}
		fmt.Fprintf(tw, "%d\t%.1f\t%.1f\t%s\t\n", step.Time, step.Output, step.Limit, capped)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nsession %s: %d steps, fleet limit %.1f, max output %.1f\ndigest %s\n",
		report.SessionID, len(report.Steps), s.Controller.FleetLimit, report.MaxOutput, report.Digest)
	return err
}
