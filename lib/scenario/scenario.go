// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"

	"github.com/feedin-foundation/feedin/lib/schema"
)

// Scenario describes one simulation run.
type Scenario struct {
	// Name labels the run in logs and reports.
	Name string `json:"name"`

	// StartDate is the RFC 3339 start of simulated time.
	StartDate string `json:"start_date"`

	// Duration is the simulated length of the run in seconds.
	Duration int64 `json:"duration"`

	// StepSize is the simulated time between steps in seconds.
	StepSize int64 `json:"step_size"`

	// WindFile is the wind series, relative to the scenario file.
	WindFile string `json:"wind_file"`

	Controller schema.ControllerConfig `json:"controller"`

	// Units lists the unit groups in creation order.
	Units []UnitGroup `json:"units"`

	Workers WorkersConfig `json:"workers"`
}

// UnitGroup is Count units sharing Params.
type UnitGroup struct {
	Count  int           `json:"count"`
	Params schema.Params `json:"params"`
}

// WorkersConfig selects how an in-process gateway runs its workers.
type WorkersConfig struct {
	// Count is the number of workers. 0 means one per CPU.
	Count int `json:"count"`

	// Exec runs workers as feedin-worker processes instead of
	// goroutines.
	Exec bool `json:"exec"`
}

// Parse strips JSONC comments and trailing commas from data and
// unmarshals the result into a Scenario.
func Parse(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := json.Unmarshal(jsonc.ToJSON(data), &scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &scenario, nil
}

// ReadFile reads and validates the scenario at path. A relative
// WindFile is resolved against the scenario's directory.
func ReadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	scenario, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if scenario.WindFile != "" && !filepath.IsAbs(scenario.WindFile) {
		scenario.WindFile = filepath.Join(filepath.Dir(path), scenario.WindFile)
	}
	if err := scenario.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return scenario, nil
}

// Start parses StartDate.
func (s *Scenario) Start() (time.Time, error) {
	start, err := time.Parse(time.RFC3339, s.StartDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("start_date: %w", err)
	}
	return start, nil
}

// Params returns the parameters of every unit in creation order.
func (s *Scenario) Params() []schema.Params {
	var params []schema.Params
	for _, group := range s.Units {
		for range group.Count {
			params = append(params, group.Params)
		}
	}
	return params
}

// Validate reports every problem with the scenario at once.
func (s *Scenario) Validate() error {
	var errs []error
	if _, err := s.Start(); err != nil {
		errs = append(errs, err)
	}
	if s.Duration <= 0 {
		errs = append(errs, fmt.Errorf("duration must be positive, got %d", s.Duration))
	}
	if s.StepSize <= 0 {
		errs = append(errs, fmt.Errorf("step_size must be positive, got %d", s.StepSize))
	}
	if s.WindFile == "" {
		errs = append(errs, errors.New("wind_file is required"))
	}
	if err := s.Controller.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("controller: %w", err))
	} else if s.StepSize > 0 && s.Controller.Interval() > time.Duration(s.StepSize)*time.Second {
		// Every step waits for a cycle; a longer interval leaves some
		// steps without one.
		errs = append(errs, fmt.Errorf("controller.check_interval (%vs) must not exceed step_size (%ds)",
			s.Controller.CheckInterval, s.StepSize))
	}
	if len(s.Units) == 0 {
		errs = append(errs, errors.New("at least one unit group is required"))
	}
	for i, group := range s.Units {
		if group.Count <= 0 {
			errs = append(errs, fmt.Errorf("units[%d]: count must be positive, got %d", i, group.Count))
		}
		if err := group.Params.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("units[%d]: %w", i, err))
		}
	}
	if s.Workers.Count < 0 {
		errs = append(errs, fmt.Errorf("workers.count must not be negative, got %d", s.Workers.Count))
	}
	return errors.Join(errs...)
}
