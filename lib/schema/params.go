// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"math"
	"time"
)

// Params describes one controllable unit. Only RatedCapacity matters
// to the controller; the speeds belong to the unit's power model and
// are carried so agents and simulated units are configured alike.
type Params struct {
	// RatedCapacity is the unit's nominal power (kW). A limit of nil
	// ("no cap") normalizes to this value.
	RatedCapacity float64 `json:"rated_capacity"`

	// RatedSpeed is the wind speed (m/s) at which RatedCapacity is
	// reached.
	RatedSpeed float64 `json:"rated_speed"`

	// MinSpeed and MaxSpeed bound the operating range (m/s). Outside
	// it the unit produces nothing.
	MinSpeed float64 `json:"min_speed"`
	MaxSpeed float64 `json:"max_speed"`
}

// Validate checks RatedCapacity > 0 and MinSpeed < RatedSpeed <
// MaxSpeed.
func (p Params) Validate() error {
	if !(p.RatedCapacity > 0) || math.IsInf(p.RatedCapacity, 0) {
		return fmt.Errorf("%w: rated_capacity must be a positive number, got %v", ErrProtocol, p.RatedCapacity)
	}
	if !(p.MinSpeed < p.RatedSpeed) {
		return fmt.Errorf("%w: min_speed (%v) must be below rated_speed (%v)", ErrProtocol, p.MinSpeed, p.RatedSpeed)
	}
	if !(p.RatedSpeed < p.MaxSpeed) {
		return fmt.Errorf("%w: rated_speed (%v) must be below max_speed (%v)", ErrProtocol, p.RatedSpeed, p.MaxSpeed)
	}
	return nil
}

// ControllerConfig configures the fleet controller cycle. It arrives
// in the host's init request.
type ControllerConfig struct {
	// FleetLimit is the maximum aggregate output of all units (kW).
	FleetLimit float64 `json:"fleet_limit"`

	// CheckInterval is the period of the controller cycle in
	// simulated seconds.
	CheckInterval float64 `json:"check_interval"`
}

// Interval returns CheckInterval as a duration.
func (c ControllerConfig) Interval() time.Duration {
	return time.Duration(c.CheckInterval * float64(time.Second))
}

// Validate checks that the fleet limit is non-negative and the check
// interval positive.
func (c ControllerConfig) Validate() error {
	if !(c.FleetLimit >= 0) || math.IsInf(c.FleetLimit, 0) {
		return fmt.Errorf("%w: fleet_limit must be a non-negative number, got %v", ErrProtocol, c.FleetLimit)
	}
	if c.Interval() <= 0 {
		return fmt.Errorf("%w: check_interval must be positive, got %v", ErrProtocol, c.CheckInterval)
	}
	return nil
}
