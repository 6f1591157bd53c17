// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import (
	"fmt"
	"slices"
)

const (
	// APIVersion is the host protocol version feedin speaks.
	APIVersion = "2.2"

	// ModelUnitAgent is the only model feedin exposes: the control
	// agent of one unit.
	ModelUnitAgent = "UnitAgent"

	// AttrOutput is the input attribute carrying a unit's current
	// power output.
	AttrOutput = "P"

	// AttrLimit is the attribute under which new power limits are
	// pushed back to the host.
	AttrLimit = "P_max"
)

// ModelMeta declares one model in the capability descriptor.
type ModelMeta struct {
	Public bool     `json:"public"`
	Params []string `json:"params"`
	Attrs  []string `json:"attrs"`
}

// Meta is the capability descriptor returned by init.
type Meta struct {
	APIVersion string               `json:"api_version"`
	Models     map[string]ModelMeta `json:"models"`
}

// DefaultMeta returns feedin's capability descriptor.
func DefaultMeta() Meta {
	return Meta{
		APIVersion: APIVersion,
		Models: map[string]ModelMeta{
			ModelUnitAgent: {
				Public: true,
				Params: []string{"rated_capacity", "rated_speed", "min_speed", "max_speed"},
				Attrs:  []string{AttrOutput},
			},
		},
	}
}

// CheckModel returns ErrProtocol unless model is declared.
func (m Meta) CheckModel(model string) error {
	if _, ok := m.Models[model]; !ok {
		return fmt.Errorf("%w: unknown model %q", ErrProtocol, model)
	}
	return nil
}

// CheckAttr returns ErrProtocol unless attr is declared for model.
func (m Meta) CheckAttr(model, attr string) error {
	declared, ok := m.Models[model]
	if !ok {
		return fmt.Errorf("%w: unknown model %q", ErrProtocol, model)
	}
	if !slices.Contains(declared.Attrs, attr) {
		return fmt.Errorf("%w: model %q has no attribute %q", ErrProtocol, model, attr)
	}
	return nil
}

// Entity describes one created model instance.
type Entity struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}
