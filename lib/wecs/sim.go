// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package wecs

import (
	"fmt"
	"math"

	"github.com/feedin-foundation/feedin/lib/schema"
)

// Power returns the output of a unit with params at wind speed v.
// Below MinSpeed and above MaxSpeed the unit is off; from RatedSpeed
// up to MaxSpeed it produces RatedCapacity; in between the output
// grows with the cube of v.
func Power(params schema.Params, v float64) float64 {
	switch {
	case v < params.MinSpeed, v > params.MaxSpeed:
		return 0
	case v >= params.RatedSpeed:
		return params.RatedCapacity
	}
	return math.Pow(v/params.RatedSpeed, 3) * params.RatedCapacity
}

// Sim is a fleet of simulated units, indexed in creation order.
type Sim struct {
	params []schema.Params
	limits []float64
	speeds []float64
	output []float64
}

// NewSim returns a fleet with one unit per params entry. Every unit
// starts unlimited.
func NewSim(params []schema.Params) (*Sim, error) {
	for i, p := range params {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, err)
		}
	}
	s := &Sim{
		params: append([]schema.Params(nil), params...),
		limits: make([]float64, len(params)),
		speeds: make([]float64, len(params)),
		output: make([]float64, len(params)),
	}
	for i, p := range params {
		s.limits[i] = p.RatedCapacity
	}
	return s, nil
}

// Len returns the number of units.
func (s *Sim) Len() int {
	return len(s.params)
}

// SetLimits replaces every unit's limit. Each limit must lie in
// [0, RatedCapacity] of its unit.
func (s *Sim) SetLimits(limits []float64) error {
	if len(limits) != len(s.params) {
		return fmt.Errorf("%w: %d limits for %d units", schema.ErrProtocol, len(limits), len(s.params))
	}
	for i, limit := range limits {
		if !(limit >= 0 && limit <= s.params[i].RatedCapacity) {
			return fmt.Errorf("%w: unit %d limit %v outside [0, %v]",
				schema.ErrProtocol, i, limit, s.params[i].RatedCapacity)
		}
	}
	copy(s.limits, limits)
	return nil
}

// Step computes every unit's output at the given wind speeds.
func (s *Sim) Step(speeds []float64) error {
	if len(speeds) != len(s.params) {
		return fmt.Errorf("%w: %d wind speeds for %d units", schema.ErrProtocol, len(speeds), len(s.params))
	}
	for i, v := range speeds {
		s.speeds[i] = v
		s.output[i] = min(Power(s.params[i], v), s.limits[i])
	}
	return nil
}

// RatedCapacity returns unit i's rated capacity.
func (s *Sim) RatedCapacity(i int) float64 { return s.params[i].RatedCapacity }

// Output returns unit i's output after the last step.
func (s *Sim) Output(i int) float64 { return s.output[i] }

// Limit returns unit i's current limit.
func (s *Sim) Limit(i int) float64 { return s.limits[i] }

// Speed returns the wind speed unit i saw in the last step.
func (s *Sim) Speed(i int) float64 { return s.speeds[i] }
