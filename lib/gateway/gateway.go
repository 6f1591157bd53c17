// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/feedin-foundation/feedin/lib/agent"
	"github.com/feedin-foundation/feedin/lib/clock"
	"github.com/feedin-foundation/feedin/lib/controller"
	"github.com/feedin-foundation/feedin/lib/directory"
	"github.com/feedin-foundation/feedin/lib/metrics"
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
	"github.com/feedin-foundation/feedin/lib/workerpool"
)

// Host is the simulation driving the gateway. The gateway calls back
// into it during setup and at the end of every step.
type Host interface {
	// SetData delivers new limits for the host's units.
	SetData(ctx context.Context, push schema.LimitPush) error

	// RelatedEntities returns, for each agent id, the ids of the host
	// entities connected to it.
	RelatedEntities(ctx context.Context, agentIDs []string) (map[string][]string, error)
}

// Config configures a gateway.
type Config struct {
	// StepSize is the simulated time between steps, in seconds.
	StepSize int64

	// Budget is the wall time one step may take, measured from the end
	// of the previous step's cycle wait. Zero means StepSize seconds.
	Budget time.Duration

	// Workers configures the pool. StartTime, Spawner and Logger are
	// filled in by the gateway when left empty.
	Workers workerpool.Config

	// ControllerAddress is where the controller accepts agent
	// registrations. Empty means "controller.sock" under
	// Workers.RunDir for unix transport and an ephemeral port on
	// Workers.TCPHost for TCP.
	ControllerAddress string

	// Clock measures the step budget. Nil means wall time.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// InitRequest starts a session.
type InitRequest struct {
	SessionID  string
	StartTime  time.Time
	Controller schema.ControllerConfig
}

// Gateway connects a host simulation to the agents of its units. Its
// methods implement the host step protocol and must be called in
// protocol order: Init, Create (any number of times), SetupDone, Step
// (any number of times), then Stop and Finalize.
type Gateway struct {
	config Config
	host   Host
	wall   clock.Clock
	logger *slog.Logger
	meta   schema.Meta
	budget time.Duration

	// mu serializes protocol calls.
	mu sync.Mutex

	sessionID string
	sim       *clock.Sim
	pool      *workerpool.Pool
	cycle     *controller.Cycle
	directory *directory.Directory

	controllerServer  *rpc.Server
	controllerAddress string
	stopServer        context.CancelFunc
	serverDone        chan error

	related   map[string]string
	setupDone bool
	lastStep  time.Time

	stopOnce     sync.Once
	stopped      chan struct{}
	finalizeOnce sync.Once
	finalizeErr  error
}

// New returns a gateway that calls back into host.
func New(config Config, host Host) (*Gateway, error) {
	if config.StepSize <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %d", config.StepSize)
	}
	if host == nil {
		return nil, errors.New("gateway: host is required")
	}
	wall := config.Clock
	if wall == nil {
		wall = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	budget := config.Budget
	if budget <= 0 {
		budget = time.Duration(config.StepSize) * time.Second
	}
	return &Gateway{
		config:    config,
		host:      host,
		wall:      wall,
		logger:    logger,
		meta:      schema.DefaultMeta(),
		budget:    budget,
		directory: directory.New(),
		stopped:   make(chan struct{}),
	}, nil
}

// Init starts the worker pool, the controller cycle and the
// controller's registration endpoint, and returns the capability
// descriptor.
func (g *Gateway) Init(ctx context.Context, request InitRequest) (schema.Meta, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sim != nil {
		return schema.Meta{}, fmt.Errorf("%w: session already initialized", schema.ErrProtocol)
	}
	if request.StartTime.IsZero() {
		return schema.Meta{}, fmt.Errorf("%w: start time is required", schema.ErrProtocol)
	}

	g.sessionID = request.SessionID
	g.logger = g.logger.With("session_id", request.SessionID)
	g.sim = clock.NewSim(request.StartTime)

	cycle, err := controller.New(g.sim, request.Controller, g.logger)
	if err != nil {
		return schema.Meta{}, err
	}
	g.cycle = cycle

	if err := g.startControllerServer(); err != nil {
		return schema.Meta{}, err
	}

	poolConfig := g.config.Workers
	poolConfig.StartTime = request.StartTime
	if poolConfig.Logger == nil {
		poolConfig.Logger = g.logger
	}
	if poolConfig.Spawner == nil {
		poolConfig.Spawner = &workerpool.InProcessSpawner{Logger: g.logger}
	}
	pool, err := workerpool.Start(ctx, poolConfig)
	if err != nil {
		return schema.Meta{}, fmt.Errorf("starting workers: %w", err)
	}
	g.pool = pool

	if err := g.cycle.Start(context.Background()); err != nil {
		return schema.Meta{}, err
	}

	g.logger.Info("session initialized",
		"start_time", request.StartTime,
		"fleet_limit", request.Controller.FleetLimit,
		"check_interval", request.Controller.Interval(),
		"workers", pool.Len(),
		"controller_address", g.controllerAddress,
	)
	return g.meta, nil
}

func (g *Gateway) startControllerServer() error {
	address := g.config.ControllerAddress
	if address == "" {
		switch g.config.Workers.Transport {
		case workerpool.TransportTCP:
			address = rpc.JoinAddress("tcp", g.config.Workers.TCPHost+":0")
		default:
			address = rpc.JoinAddress("unix", filepath.Join(g.config.Workers.RunDir, "controller.sock"))
		}
	}

	server := rpc.NewServer(address, g.logger)
	agent.HandleRegister(server, g.cycle)
	if err := server.Listen(); err != nil {
		return fmt.Errorf("starting controller endpoint: %w", err)
	}

	serverCtx, cancel := context.WithCancel(context.Background())
	g.controllerServer = server
	g.controllerAddress = server.Address()
	g.stopServer = cancel
	g.serverDone = make(chan error, 1)
	go func() { g.serverDone <- server.Serve(serverCtx) }()
	return nil
}

// Create spawns count agents of model. Each agent is placed on a
// worker round robin and is registered with the controller before
// Create returns.
func (g *Gateway) Create(ctx context.Context, count int, model string, params schema.Params) ([]schema.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pool == nil {
		return nil, fmt.Errorf("%w: create before init", schema.ErrProtocol)
	}
	if g.setupDone {
		return nil, fmt.Errorf("%w: create after setup_done", schema.ErrProtocol)
	}
	if err := g.meta.CheckModel(model); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", schema.ErrProtocol, count)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	entities := make([]schema.Entity, 0, count)
	first := g.directory.Len()
	for index := first; index < first+count; index++ {
		id := fmt.Sprintf("Agent_%d", index)
		w := g.pool.Assign(index)
		err := w.Client.Call(ctx, agent.ActionSpawn, agent.SpawnRequest{
			UnitID:            id,
			ControllerAddress: g.controllerAddress,
			Params:            params,
		}, nil)
		if err != nil {
			return nil, fmt.Errorf("spawning %s on worker %d: %w", id, w.Index, err)
		}
		if err := g.directory.Add(agent.NewRemote(id, params.RatedCapacity, w.Client)); err != nil {
			return nil, err
		}
		entities = append(entities, schema.Entity{ID: id, Type: model})
	}

	g.logger.Info("agents created", "model", model, "count", count, "total", g.directory.Len())
	return entities, nil
}

// SetupDone maps every agent to the single host entity connected to
// it and starts the step budget clock.
func (g *Gateway) SetupDone(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pool == nil {
		return fmt.Errorf("%w: setup_done before init", schema.ErrProtocol)
	}

	ids := g.directory.IDs()
	relations, err := g.host.RelatedEntities(ctx, ids)
	if err != nil {
		return fmt.Errorf("querying related entities: %w", err)
	}

	related := make(map[string]string, len(ids))
	for agentID, units := range relations {
		if _, ok := g.directory.Get(agentID); !ok {
			return fmt.Errorf("%w: host reported relations for unknown agent %q", schema.ErrProtocol, agentID)
		}
		if len(units) != 1 {
			return fmt.Errorf("%w: agent %s is connected to %d entities, want exactly 1",
				schema.ErrProtocol, agentID, len(units))
		}
		related[agentID] = units[0]
	}

	g.related = related
	g.setupDone = true
	g.lastStep = g.wall.Now()
	g.logger.Info("setup done", "agents", len(ids), "connected", len(related))
	return nil
}

// Step advances the session to simulated time t (seconds since the
// start), forwards inputs to the agents, waits for a controller cycle
// within the step budget and pushes the resulting limits to the host.
// It returns the time of the next step.
func (g *Gateway) Step(ctx context.Context, t int64, inputs schema.Inputs) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.setupDone {
		return 0, fmt.Errorf("%w: step before setup_done", schema.ErrProtocol)
	}
	started := g.wall.Now()
	defer func() { metrics.RecordStep(g.wall.Now().Sub(started)) }()

	states, err := inputs.States(g.meta, schema.ModelUnitAgent)
	if err != nil {
		return 0, err
	}
	if err := g.pool.SetTime(ctx, t); err != nil {
		return 0, err
	}
	if err := g.directory.Update(ctx, states); err != nil {
		return 0, err
	}

	// The local clock moves last: the cycle it releases must see the
	// outputs forwarded above.
	next := g.cycle.Next()
	if !g.sim.SetOffset(time.Duration(t) * time.Second) {
		return 0, fmt.Errorf("%w: step time %d is before the current time %v",
			schema.ErrProtocol, t, g.sim.Offset())
	}

	remaining := g.budget - g.wall.Now().Sub(g.lastStep)
	if err := g.awaitCycle(ctx, next, remaining); err != nil {
		return 0, err
	}
	g.lastStep = g.wall.Now()

	limits, err := g.directory.Collect(ctx)
	if err != nil {
		return 0, err
	}
	push := schema.NewLimitPush(limits, g.related)
	if err := g.host.SetData(ctx, push); err != nil {
		return 0, fmt.Errorf("pushing limits: %w", err)
	}

	g.logger.Debug("step done", "time", t, "limits", len(push), "cycles", g.cycle.Completed())
	return t + g.config.StepSize, nil
}

func (g *Gateway) awaitCycle(ctx context.Context, next <-chan struct{}, remaining time.Duration) error {
	select {
	case <-next:
		return nil
	default:
	}

	select {
	case <-next:
		return nil
	case <-g.cycle.Finished():
		if err := g.cycle.Err(); err != nil {
			return fmt.Errorf("controller cycle failed: %w", err)
		}
		return errors.New("controller cycle stopped")
	case <-g.wall.After(remaining):
		metrics.RecordBudgetExceeded()
		return fmt.Errorf("%w: no controller cycle completed within %v", schema.ErrBudgetExceeded, g.budget)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop marks the session as stopped. The process owning the gateway
// watches Stopped and calls Finalize.
func (g *Gateway) Stop() {
	g.stopOnce.Do(func() {
		g.logger.Info("stop requested")
		close(g.stopped)
	})
}

// Stopped is closed by Stop.
func (g *Gateway) Stopped() <-chan struct{} {
	return g.stopped
}

// SessionID returns the id passed to Init.
func (g *Gateway) SessionID() string {
	return g.sessionID
}

// Finalize stops every worker and waits for its process to exit,
// stops the controller cycle and closes the controller endpoint. The
// three run concurrently and all complete before Finalize returns.
// Calling it again returns the first result.
func (g *Gateway) Finalize(ctx context.Context) error {
	g.finalizeOnce.Do(func() {
		g.mu.Lock()
		defer g.mu.Unlock()

		var group errgroup.Group
		if g.pool != nil {
			group.Go(func() error {
				return g.pool.Shutdown(ctx)
			})
		}
		if g.cycle != nil {
			group.Go(func() error {
				return g.cycle.Stop()
			})
		}
		if g.stopServer != nil {
			group.Go(func() error {
				g.stopServer()
				return <-g.serverDone
			})
		}
		g.finalizeErr = group.Wait()
		g.logger.Info("session finalized", "error", g.finalizeErr)
	})
	return g.finalizeErr
}
