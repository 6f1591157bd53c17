// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/feedin-foundation/feedin/lib/workerpool"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feedin.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Gateway.StepSize != 900 {
		t.Errorf("expected step_size=900, got %d", cfg.Gateway.StepSize)
	}
	if cfg.Workers.Transport != workerpool.TransportUnix {
		t.Errorf("expected transport=unix, got %s", cfg.Workers.Transport)
	}
	if cfg.Workers.ConnectTimeout != "10s" {
		t.Errorf("expected connect_timeout=10s, got %s", cfg.Workers.ConnectTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoadRequiresFeedinConfig(t *testing.T) {
	t.Setenv(EnvVar, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when FEEDIN_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "FEEDIN_CONFIG environment variable not set") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadWithFeedinConfig(t *testing.T) {
	t.Setenv(EnvVar, writeConfig(t, `
gateway:
  listen: tcp:127.0.0.1:5555
  step_size: 60
workers:
  count: 4
  transport: tcp
`))

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Gateway.Listen != "tcp:127.0.0.1:5555" {
		t.Errorf("expected listen from file, got %s", cfg.Gateway.Listen)
	}
	if cfg.Gateway.StepSize != 60 || cfg.Workers.Count != 4 {
		t.Errorf("step_size=%d count=%d, want 60 and 4", cfg.Gateway.StepSize, cfg.Workers.Count)
	}
	if cfg.Workers.Transport != workerpool.TransportTCP {
		t.Errorf("expected transport=tcp, got %s", cfg.Workers.Transport)
	}
	// Unset fields keep their defaults.
	if cfg.Workers.BasePort != 5556 || cfg.Log.Level != "info" {
		t.Errorf("base_port=%d level=%s, want defaults", cfg.Workers.BasePort, cfg.Log.Level)
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); !os.IsNotExist(err) {
		t.Errorf("expected a not-exist error, got %v", err)
	}
}

func TestLoadFileMalformed(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "gateway: [unterminated"))
	if err == nil || !strings.Contains(err.Error(), "parsing") {
		t.Errorf("expected a parse error, got %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: development
workers:
  spawn: exec
  count: 2
development:
  workers:
    spawn: in_process
    count: 1
production:
  workers:
    count: 16
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Workers.Spawn != SpawnInProcess || cfg.Workers.Count != 1 {
		t.Errorf("spawn=%s count=%d, want development overrides", cfg.Workers.Spawn, cfg.Workers.Count)
	}
}

func TestProductionDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
environment: production
workers:
  spawn: in_process
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Workers.Spawn != SpawnExec {
		t.Errorf("expected production to force exec workers, got %s", cfg.Workers.Spawn)
	}
	if cfg.Workers.ConnectTimeout != "5s" {
		t.Errorf("expected production connect_timeout=5s, got %s", cfg.Workers.ConnectTimeout)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("FEEDIN_STEP_SIZE", "1")

	cfg, err := LoadFile(writeConfig(t, "gateway:\n  step_size: 300\n"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Gateway.StepSize != 300 {
		t.Errorf("expected step_size from file, got %d", cfg.Gateway.StepSize)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("FEEDIN_TEST_DIR", "/from/env")

	tests := []struct {
		input string
		vars  map[string]string
		want  string
	}{
		{"${HOME}/x", map[string]string{"HOME": "/home/op"}, "/home/op/x"},
		{"${FEEDIN_ROOT}/run", map[string]string{"FEEDIN_ROOT": "/srv/feedin"}, "/srv/feedin/run"},
		{"${FEEDIN_TEST_DIR}/y", nil, "/from/env/y"},
		{"${FEEDIN_UNSET_VAR:-/fallback}", nil, "/fallback"},
		{"${FEEDIN_UNSET_VAR}", nil, ""},
		{"/plain/path", nil, "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, test.vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestLoadFileExpandsPaths(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, `
paths:
  root: /srv/feedin
  run: ${FEEDIN_ROOT}/run
gateway:
  listen: ${FEEDIN_ROOT}/run/gateway.sock
`))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg.Paths.Run != "/srv/feedin/run" {
		t.Errorf("run = %s", cfg.Paths.Run)
	}
	if cfg.Gateway.Listen != "/srv/feedin/run/gateway.sock" {
		t.Errorf("listen = %s", cfg.Gateway.Listen)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"bad environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"zero step size", func(c *Config) { c.Gateway.StepSize = 0 }, "gateway.step_size"},
		{"bad budget", func(c *Config) { c.Gateway.Budget = "soon" }, "gateway.budget"},
		{"negative count", func(c *Config) { c.Workers.Count = -1 }, "workers.count"},
		{"bad spawn", func(c *Config) { c.Workers.Spawn = "fork" }, "workers.spawn"},
		{"bad transport", func(c *Config) { c.Workers.Transport = "udp" }, "workers.transport"},
		{"tcp without host", func(c *Config) {
			c.Workers.Transport = workerpool.TransportTCP
			c.Workers.TCPHost = ""
		}, "workers.tcp_host"},
		{"bad connect timeout", func(c *Config) { c.Workers.ConnectTimeout = "-1s" }, "workers.connect_timeout"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"no listen", func(c *Config) { c.Gateway.Listen = "" }, "gateway.listen"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), test.want) {
				t.Errorf("Validate() = %v, want an error mentioning %q", err, test.want)
			}
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.Gateway.StepSize = -1
	cfg.Workers.Spawn = "fork"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"gateway.step_size", "workers.spawn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	root := filepath.Join(t.TempDir(), "feedin")
	cfg := Default()
	cfg.Paths.Root = root
	cfg.Paths.Run = filepath.Join(root, "run")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	if info, err := os.Stat(cfg.Paths.Run); err != nil || !info.IsDir() {
		t.Errorf("run directory not created: %v", err)
	}
}

func TestBinaryPathPrefersBin(t *testing.T) {
	bin := t.TempDir()
	path := filepath.Join(bin, WorkerBinary)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	cfg := Default()
	cfg.Paths.Bin = bin

	got, err := cfg.BinaryPath(WorkerBinary)
	if err != nil {
		t.Fatalf("BinaryPath: %v", err)
	}
	if got != path {
		t.Errorf("BinaryPath = %s, want %s", got, path)
	}
}

func TestResolveGateway(t *testing.T) {
	cfg := Default()
	cfg.Workers.Spawn = SpawnInProcess
	cfg.Workers.Count = 3
	cfg.Workers.ConnectTimeout = "2s"
	cfg.Gateway.Budget = "30s"
	cfg.Paths.Run = "/run/feedin"

	gc, err := cfg.ResolveGateway(nil)
	if err != nil {
		t.Fatalf("ResolveGateway: %v", err)
	}
	if gc.StepSize != 900 || gc.Budget != 30*time.Second {
		t.Errorf("step=%d budget=%v", gc.StepSize, gc.Budget)
	}
	if gc.Workers.Count != 3 || gc.Workers.RunDir != "/run/feedin" || gc.Workers.ConnectTimeout != 2*time.Second {
		t.Errorf("workers = %+v", gc.Workers)
	}
	if _, ok := gc.Workers.Spawner.(*workerpool.InProcessSpawner); !ok {
		t.Errorf("spawner = %T, want *workerpool.InProcessSpawner", gc.Workers.Spawner)
	}
}

func TestResolveGatewayMissingWorkerBinary(t *testing.T) {
	t.Setenv("PATH", t.TempDir())
	cfg := Default()
	cfg.Paths.Bin = t.TempDir()

	if _, err := cfg.ResolveGateway(nil); err == nil || !strings.Contains(err.Error(), WorkerBinary) {
		t.Errorf("ResolveGateway = %v, want a missing %s error", err, WorkerBinary)
	}
}
