// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCycle(t *testing.T) {
	cycles := testutil.ToFloat64(cyclesTotal)
	capped := testutil.ToFloat64(cappedCyclesTotal)

	RecordCycle(25, 0.6, true)
	if got := testutil.ToFloat64(scaleFactor); got != 0.6 {
		t.Errorf("scale_factor = %v, want 0.6", got)
	}
	RecordCycle(9, 1, false)

	if got := testutil.ToFloat64(cyclesTotal) - cycles; got != 2 {
		t.Errorf("cycles_total grew by %v, want 2", got)
	}
	if got := testutil.ToFloat64(cappedCyclesTotal) - capped; got != 1 {
		t.Errorf("capped_cycles_total grew by %v, want 1", got)
	}
	if got := testutil.ToFloat64(aggregateOutput); got != 9 {
		t.Errorf("aggregate_output = %v, want 9", got)
	}
	if got := testutil.ToFloat64(scaleFactor); got != 1 {
		t.Errorf("scale_factor = %v, want 1", got)
	}
}

func TestRecordBudgetExceeded(t *testing.T) {
	before := testutil.ToFloat64(budgetExceededTotal)
	RecordBudgetExceeded()
	if got := testutil.ToFloat64(budgetExceededTotal) - before; got != 1 {
		t.Errorf("budget_exceeded_total grew by %v, want 1", got)
	}
}

func TestRegisterExposesMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	Register(registry)
	Register(registry)

	RecordStep(20 * time.Millisecond)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool)
	for _, family := range families {
		names[family.GetName()] = true
	}
	for _, name := range []string{
		"feedin_controller_cycles_total",
		"feedin_controller_capped_cycles_total",
		"feedin_controller_aggregate_output",
		"feedin_controller_scale_factor",
		"feedin_gateway_step_seconds",
		"feedin_gateway_budget_exceeded_total",
	} {
		if !names[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
	if count := testutil.CollectAndCount(stepDuration); count != 1 {
		t.Errorf("step_seconds collected %d series, want 1", count)
	}
}
