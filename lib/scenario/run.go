// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/feedin-foundation/feedin/lib/gateway"
	"github.com/feedin-foundation/feedin/lib/schema"
	"github.com/feedin-foundation/feedin/lib/wecs"
	"github.com/feedin-foundation/feedin/lib/workerpool"
)

// Session is the host step protocol as seen from the host. Both
// [gateway.Gateway] and [hostapi.Client] implement it.
type Session interface {
	Init(ctx context.Context, request gateway.InitRequest) (schema.Meta, error)
	Create(ctx context.Context, count int, model string, params schema.Params) ([]schema.Entity, error)
	SetupDone(ctx context.Context) error
	Step(ctx context.Context, t int64, inputs schema.Inputs) (int64, error)
}

// StepRecord summarizes one step.
type StepRecord struct {
	// Time is the step time in seconds since the start.
	Time int64 `json:"time"`

	// Output is the aggregate output of all units.
	Output float64 `json:"output"`

	// Limit is the sum of the limits in force during the step.
	Limit float64 `json:"limit"`

	// Capped is set when any unit ran below its rated capacity
	// limit.
	Capped bool `json:"capped"`
}

// Report is the result of a run.
type Report struct {
	SessionID string       `json:"session_id"`
	Steps     []StepRecord `json:"steps"`

	// MaxOutput is the highest aggregate output of any step.
	MaxOutput float64 `json:"max_output"`

	// Digest is the hex BLAKE3 hash of every step's time and
	// per-unit limits. Runs applying the same limits at the same
	// times have equal digests.
	Digest string `json:"digest"`
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return "FeedinSim-" + uuid.New().String()[:8]
}

// Run drives session through the scenario: it initializes the
// session, creates one agent per unit, then steps until Duration,
// feeding each step the units' output at the next wind row. The
// caller owns session teardown.
func Run(ctx context.Context, s *Scenario, session Session, host *Host, series *wecs.Series, sessionID string, logger *slog.Logger) (*Report, error) {
	start, err := s.Start()
	if err != nil {
		return nil, err
	}

	meta, err := session.Init(ctx, gateway.InitRequest{
		SessionID:  sessionID,
		StartTime:  start,
		Controller: s.Controller,
	})
	if err != nil {
		return nil, fmt.Errorf("init: %w", err)
	}
	if err := meta.CheckModel(schema.ModelUnitAgent); err != nil {
		return nil, err
	}

	unit := 0
	for _, group := range s.Units {
		entities, err := session.Create(ctx, group.Count, schema.ModelUnitAgent, group.Params)
		if err != nil {
			return nil, fmt.Errorf("create: %w", err)
		}
		if len(entities) != group.Count {
			return nil, fmt.Errorf("%w: created %d entities, asked for %d", schema.ErrProtocol, len(entities), group.Count)
		}
		for _, entity := range entities {
			if err := host.Connect(entity.ID, unit); err != nil {
				return nil, err
			}
			unit++
		}
	}
	if err := session.SetupDone(ctx); err != nil {
		return nil, fmt.Errorf("setup_done: %w", err)
	}
	logger.Info("scenario set up", "session", sessionID, "units", unit)

	report := &Report{SessionID: sessionID}
	hasher := blake3.New()
	var word [8]byte
	for t := int64(0); t < s.Duration; {
		speeds, err := series.Next(host.Len())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		limits, err := host.Advance(speeds)
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}

		next, err := session.Step(ctx, t, host.Inputs())
		if err != nil {
			return nil, fmt.Errorf("step %d: %w", t, err)
		}
		if next <= t {
			return nil, fmt.Errorf("%w: step %d returned next time %d", schema.ErrProtocol, t, next)
		}

		record := StepRecord{Time: t}
		binary.BigEndian.PutUint64(word[:], uint64(t))
		hasher.Write(word[:])
		for i, limit := range limits {
			record.Output += host.Output(i)
			record.Limit += limit
			if limit < host.sim.RatedCapacity(i) {
				record.Capped = true
			}
			binary.BigEndian.PutUint64(word[:], math.Float64bits(limit))
			hasher.Write(word[:])
		}
		report.Steps = append(report.Steps, record)
		report.MaxOutput = max(report.MaxOutput, record.Output)
		logger.Debug("step", "time", t, "output", record.Output, "limit", record.Limit)
		t = next
	}
	report.Digest = hex.EncodeToString(hasher.Sum(nil))
	return report, nil
}

// Options configures [RunInProcess].
type Options struct {
	// SessionID defaults to [NewSessionID].
	SessionID string

	// WorkerBinary is the feedin-worker executable, required when the
	// scenario asks for exec workers.
	WorkerBinary string

	// LogLevel is passed to exec workers.
	LogLevel string

	Logger *slog.Logger
}

// RunInProcess runs the scenario against a gateway inside this
// process. Worker sockets live in a temporary directory removed
// afterwards.
func RunInProcess(ctx context.Context, s *Scenario, options Options) (report *Report, err error) {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	sessionID := options.SessionID
	if sessionID == "" {
		sessionID = NewSessionID()
	}

	host, err := NewHost(s.Params())
	if err != nil {
		return nil, err
	}
	series, err := wecs.OpenSeries(s.WindFile)
	if err != nil {
		return nil, err
	}
	defer series.Close()

	runDir, err := os.MkdirTemp("", "feedin-")
	if err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}
	defer os.RemoveAll(runDir)

	var spawner workerpool.Spawner = &workerpool.InProcessSpawner{Logger: logger}
	if s.Workers.Exec {
		if options.WorkerBinary == "" {
			return nil, errors.New("exec workers need a worker binary")
		}
		spawner = &workerpool.ExecSpawner{Binary: options.WorkerBinary, LogLevel: options.LogLevel, Logger: logger}
	}

	g, err := gateway.New(gateway.Config{
		StepSize: s.StepSize,
		Workers: workerpool.Config{
			Count:   s.Workers.Count,
			RunDir:  runDir,
			Spawner: spawner,
			Logger:  logger,
		},
		Logger: logger,
	}, host)
	if err != nil {
		return nil, err
	}
	defer func() {
		g.Stop()
		finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if finalizeErr := g.Finalize(finalizeCtx); finalizeErr != nil && err == nil {
			err = fmt.Errorf("finalizing session: %w", finalizeErr)
		}
	}()

	return Run(ctx, s, g, host, series, sessionID, logger)
}
