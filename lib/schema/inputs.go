// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"sort"
)

// State is the latest telemetry of one unit: attribute → value.
type State map[string]float64

// Output returns the AttrOutput value.
func (s State) Output() (float64, error) {
	value, ok := s[AttrOutput]
	if !ok {
		return 0, fmt.Errorf("%w: state has no %q attribute", ErrProtocol, AttrOutput)
	}
	return value, nil
}

// Inputs is the host's step input: entity → attribute → source →
// value. Each agent is connected to exactly one unit, so every
// attribute must have exactly one source.
type Inputs map[string]map[string]map[string]float64

// States flattens the inputs into entity → State, checking each
// attribute against the model declaration in meta.
func (in Inputs) States(meta Meta, model string) (map[string]State, error) {
	states := make(map[string]State, len(in))
	for entity, attrs := range in {
		state := make(State, len(attrs))
		for attr, sources := range attrs {
			if err := meta.CheckAttr(model, attr); err != nil {
				return nil, fmt.Errorf("entity %q: %w", entity, err)
			}
			if len(sources) != 1 {
				return nil, fmt.Errorf("%w: entity %q attribute %q has %d sources, want exactly 1",
					ErrProtocol, entity, attr, len(sources))
			}
			for _, value := range sources {
				state[attr] = value
			}
		}
		states[entity] = state
	}
	return states, nil
}

// LimitPush is the payload of the host set_data callback:
// agent entity → controlled unit → attribute → value.
type LimitPush map[string]map[string]map[string]float64

// NewLimitPush builds the push for limits, addressing each agent's
// limit to its controlled unit. Agents with an undefined limit (no
// cycle completed yet) or no related unit are omitted.
func NewLimitPush(limits map[string]*float64, related map[string]string) LimitPush {
	push := make(LimitPush, len(limits))
	for agentID, limit := range limits {
		unitID, ok := related[agentID]
		if limit == nil || !ok {
			continue
		}
		push[agentID] = map[string]map[string]float64{
			unitID: {AttrLimit: *limit},
		}
	}
	return push
}

// SortedIDs returns the keys of a map sorted lexically.
func SortedIDs[V any](values map[string]V) []string {
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
