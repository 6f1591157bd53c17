// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"fmt"
	"math"

	"github.com/feedin-foundation/feedin/lib/schema"
)

// Tolerance bounds the difference between the sum of capped limits and
// the fleet limit.
const Tolerance = 0.01

// Decision is the outcome of one DECIDE phase.
type Decision struct {
	// Total is the sum of the collected outputs.
	Total float64

	// Capped reports whether Total exceeded the fleet limit.
	Capped bool

	// Factor is fleetLimit/Total when capped, 1 otherwise.
	Factor float64

	// Limits holds one entry per output, in the same order. A nil
	// entry resets the unit to its rated capacity.
	Limits []*float64
}

// Decide computes new limits from outputs. When the aggregate exceeds
// fleetLimit every unit is scaled by the same factor so the limits sum
// to fleetLimit; otherwise every limit is reset. The scaled sum is
// checked against Tolerance and a violation returns ErrInvariant.
//
// Each scaled limit is then clamped to [0, rated[i]]. Clamping only
// lowers a limit, and only for outputs outside [0, rated[i]], so the
// applied limits never sum above fleetLimit.
func Decide(outputs, rated []float64, fleetLimit float64) (Decision, error) {
	if len(rated) != len(outputs) {
		return Decision{}, fmt.Errorf("%w: %d outputs but %d rated capacities",
			schema.ErrInvariant, len(outputs), len(rated))
	}
	decision := Decision{Factor: 1, Limits: make([]*float64, len(outputs))}
	for i, output := range outputs {
		if math.IsNaN(output) || math.IsInf(output, 0) {
			return Decision{}, fmt.Errorf("%w: output %d is %v", schema.ErrInvariant, i, output)
		}
		decision.Total += output
	}

	if decision.Total <= fleetLimit {
		return decision, nil
	}

	decision.Capped = true
	decision.Factor = fleetLimit / decision.Total
	var sum float64
	scaled := make([]float64, len(outputs))
	for i, output := range outputs {
		scaled[i] = output * decision.Factor
		sum += scaled[i]
	}
	if math.Abs(sum-fleetLimit) >= Tolerance {
		return Decision{}, fmt.Errorf("%w: capped limits sum to %v, fleet limit is %v",
			schema.ErrInvariant, sum, fleetLimit)
	}
	for i, limit := range scaled {
		limit = min(max(limit, 0), rated[i])
		decision.Limits[i] = &limit
	}
	return decision, nil
}
