// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus metrics of the controller
// cycle and the gateway. Metrics are recorded unconditionally and only
// exposed once Register has been called on a registry.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "feedin"

var (
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "cycles_total",
			Help:      "Count of completed controller cycles.",
		},
	)
	cappedCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "capped_cycles_total",
			Help:      "Count of controller cycles in which the aggregate output exceeded the fleet limit.",
		},
	)
	aggregateOutput = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "aggregate_output",
			Help:      "Aggregate output of all units seen by the last cycle (kW).",
		},
	)
	scaleFactor = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "scale_factor",
			Help:      "Factor applied to unit outputs by the last cycle, 1 when limits were reset.",
		},
	)
	stepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "step_seconds",
			Help:      "Wall time spent handling one host step.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)
	budgetExceededTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "budget_exceeded_total",
			Help:      "Count of steps that failed because no cycle completed within the step budget.",
		},
	)
)

var registerMetrics sync.Once

// Register adds every metric to registerer. Only the first call has an
// effect.
func Register(registerer prometheus.Registerer) {
	registerMetrics.Do(func() {
		registerer.MustRegister(cyclesTotal)
		registerer.MustRegister(cappedCyclesTotal)
		registerer.MustRegister(aggregateOutput)
		registerer.MustRegister(scaleFactor)
		registerer.MustRegister(stepDuration)
		registerer.MustRegister(budgetExceededTotal)
	})
}

// RecordCycle records the outcome of one controller cycle.
func RecordCycle(total, factor float64, capped bool) {
	cyclesTotal.Inc()
	if capped {
		cappedCyclesTotal.Inc()
	}
	aggregateOutput.Set(total)
	scaleFactor.Set(factor)
}

// RecordStep records the wall time of one step.
func RecordStep(duration time.Duration) {
	stepDuration.Observe(duration.Seconds())
}

// RecordBudgetExceeded counts a step that ran out of budget.
func RecordBudgetExceeded() {
	budgetExceededTotal.Inc()
}
