// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/feedin-foundation/feedin/lib/gateway"
	"github.com/feedin-foundation/feedin/lib/logging"
	"github.com/feedin-foundation/feedin/lib/workerpool"
)

// EnvVar names the environment variable [Load] reads.
const EnvVar = "FEEDIN_CONFIG"

// WorkerBinary is the file name of the worker executable.
const WorkerBinary = "feedin-worker"

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Worker launch modes.
const (
	// SpawnExec runs each worker as a child process of the gateway.
	SpawnExec = "exec"

	// SpawnInProcess runs each worker on goroutines inside the
	// gateway. Useful for development; a wedged agent then wedges the
	// gateway too.
	SpawnInProcess = "in_process"
)

// Config is the gateway configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	Paths   PathsConfig   `yaml:"paths"`
	Gateway GatewayConfig `yaml:"gateway"`
	Workers WorkersConfig `yaml:"workers"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`

	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that can be set per environment.
type Overrides struct {
	Workers *WorkersConfig `yaml:"workers,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// Root is the base directory for feedin state.
	Root string `yaml:"root"`

	// Run holds the controller and worker sockets of a session.
	Run string `yaml:"run"`

	// Bin is searched for the worker binary before PATH.
	Bin string `yaml:"bin"`
}

// GatewayConfig configures the step protocol endpoint.
type GatewayConfig struct {
	// Listen is where the host connects: a socket path, or
	// "tcp:host:port".
	Listen string `yaml:"listen"`

	// StepSize is the simulated time between steps, in seconds.
	StepSize int64 `yaml:"step_size"`

	// Budget is the wall time a step may take, as a Go duration.
	// Empty means StepSize seconds.
	Budget string `yaml:"budget"`
}

// WorkersConfig configures the worker pool.
type WorkersConfig struct {
	// Count is the number of workers. 0 means one per CPU.
	Count int `yaml:"count"`

	// Spawn is SpawnExec or SpawnInProcess.
	Spawn string `yaml:"spawn"`

	// Transport is "unix" or "tcp".
	Transport string `yaml:"transport"`
	TCPHost   string `yaml:"tcp_host"`
	BasePort  int    `yaml:"base_port"`

	// ConnectTimeout bounds the wait for each worker, as a Go
	// duration.
	ConnectTimeout string `yaml:"connect_timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warning, error or critical.
	Level string `yaml:"level"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is the HTTP listen address for /metrics. Empty disables
	// the endpoint.
	Listen string `yaml:"listen"`
}

// Default returns the default configuration. It fills every field so
// a config file only needs to name what it changes; the file itself
// is still required.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	defaultRoot := filepath.Join(homeDir, ".cache", "feedin")

	return &Config{
		Environment: Development,
		Paths: PathsConfig{
			Root: defaultRoot,
			Run:  filepath.Join(defaultRoot, "run"),
			Bin:  filepath.Join(defaultRoot, "bin"),
		},
		Gateway: GatewayConfig{
			Listen:   filepath.Join(defaultRoot, "run", "gateway.sock"),
			StepSize: 900,
		},
		Workers: WorkersConfig{
			Spawn:          SpawnExec,
			Transport:      workerpool.TransportUnix,
			TCPHost:        "127.0.0.1",
			BasePort:       5556,
			ConnectTimeout: workerpool.DefaultConnectTimeout.String(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from the file named by FEEDIN_CONFIG. It
// fails when the variable is unset; there is no default location.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvVar)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your feedin.yaml config file, or use --config flag", EnvVar)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path on top of [Default], applies
// the matching environment section and expands path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		if overrides == nil {
			overrides = &Overrides{Workers: &WorkersConfig{Spawn: SpawnExec, ConnectTimeout: "5s"}}
		}
	}
	if overrides == nil || overrides.Workers == nil {
		return
	}

	w := overrides.Workers
	if w.Count != 0 {
		c.Workers.Count = w.Count
	}
	if w.Spawn != "" {
		c.Workers.Spawn = w.Spawn
	}
	if w.Transport != "" {
		c.Workers.Transport = w.Transport
	}
	if w.TCPHost != "" {
		c.Workers.TCPHost = w.TCPHost
	}
	if w.BasePort != 0 {
		c.Workers.BasePort = w.BasePort
	}
	if w.ConnectTimeout != "" {
		c.Workers.ConnectTimeout = w.ConnectTimeout
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"FEEDIN_ROOT": c.Paths.Root,
		"HOME":        os.Getenv("HOME"),
	}

	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["FEEDIN_ROOT"] = c.Paths.Root

	c.Paths.Run = expandVars(c.Paths.Run, vars)
	c.Paths.Bin = expandVars(c.Paths.Bin, vars)
	c.Gateway.Listen = expandVars(c.Gateway.Listen, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}, preferring vars over
// the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, defaultValue := parts[1], parts[2]
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors, reporting all of them
// at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}
	if c.Paths.Run == "" {
		errs = append(errs, errors.New("paths.run is required"))
	}
	if c.Gateway.Listen == "" {
		errs = append(errs, errors.New("gateway.listen is required"))
	}
	if c.Gateway.StepSize <= 0 {
		errs = append(errs, fmt.Errorf("gateway.step_size must be positive, got %d", c.Gateway.StepSize))
	}
	if c.Gateway.Budget != "" {
		if d, err := time.ParseDuration(c.Gateway.Budget); err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("gateway.budget must be a positive duration, got %q", c.Gateway.Budget))
		}
	}
	if c.Workers.Count < 0 {
		errs = append(errs, fmt.Errorf("workers.count must not be negative, got %d", c.Workers.Count))
	}
	if !slices.Contains([]string{SpawnExec, SpawnInProcess}, c.Workers.Spawn) {
		errs = append(errs, fmt.Errorf("workers.spawn must be one of: %s, %s", SpawnExec, SpawnInProcess))
	}
	switch c.Workers.Transport {
	case workerpool.TransportUnix:
	case workerpool.TransportTCP:
		if c.Workers.TCPHost == "" {
			errs = append(errs, errors.New("workers.tcp_host is required for tcp transport"))
		}
		if c.Workers.BasePort < 0 || c.Workers.BasePort > 65535 {
			errs = append(errs, fmt.Errorf("workers.base_port out of range: %d", c.Workers.BasePort))
		}
	default:
		errs = append(errs, fmt.Errorf("workers.transport must be one of: %s, %s",
			workerpool.TransportUnix, workerpool.TransportTCP))
	}
	if d, err := time.ParseDuration(c.Workers.ConnectTimeout); err != nil || d <= 0 {
		errs = append(errs, fmt.Errorf("workers.connect_timeout must be a positive duration, got %q", c.Workers.ConnectTimeout))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	return errors.Join(errs...)
}

// EnsurePaths creates the configured directories.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Run} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

// BinaryPath returns the full path to a feedin binary, looking in
// Paths.Bin first and then PATH.
func (c *Config) BinaryPath(name string) (string, error) {
	if c.Paths.Bin != "" {
		binPath := filepath.Join(c.Paths.Bin, name)
		if _, err := os.Stat(binPath); err == nil {
			return binPath, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		if c.Paths.Bin != "" {
			return "", fmt.Errorf("%s not found in %s or PATH", name, c.Paths.Bin)
		}
		return "", fmt.Errorf("%s not found in PATH", name)
	}
	return path, nil
}

// ResolveGateway returns the gateway configuration for a validated Config.
// For exec workers the worker binary is resolved with [BinaryPath].
func (c *Config) ResolveGateway(logger *slog.Logger) (gateway.Config, error) {
	connectTimeout, err := time.ParseDuration(c.Workers.ConnectTimeout)
	if err != nil {
		return gateway.Config{}, fmt.Errorf("workers.connect_timeout: %w", err)
	}
	var budget time.Duration
	if c.Gateway.Budget != "" {
		if budget, err = time.ParseDuration(c.Gateway.Budget); err != nil {
			return gateway.Config{}, fmt.Errorf("gateway.budget: %w", err)
		}
	}

	var spawner workerpool.Spawner
	switch c.Workers.Spawn {
	case SpawnExec:
		binary, err := c.BinaryPath(WorkerBinary)
		if err != nil {
			return gateway.Config{}, err
		}
		spawner = &workerpool.ExecSpawner{Binary: binary, LogLevel: c.Log.Level, Logger: logger}
	default:
		spawner = &workerpool.InProcessSpawner{Logger: logger}
	}

	return gateway.Config{
		StepSize: c.Gateway.StepSize,
		Budget:   budget,
		Workers: workerpool.Config{
			Count:          c.Workers.Count,
			Transport:      c.Workers.Transport,
			RunDir:         c.Paths.Run,
			TCPHost:        c.Workers.TCPHost,
			BasePort:       c.Workers.BasePort,
			ConnectTimeout: connectTimeout,
			Spawner:        spawner,
			Logger:         logger,
		},
		Logger: logger,
	}, nil
}
