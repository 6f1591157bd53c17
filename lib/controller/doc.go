// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package controller implements the fleet controller cycle.
//
// The cycle wakes on simulated time: first at the session start, then
// every check interval. Each cycle collects the output of every
// registered agent, and when the aggregate exceeds the fleet limit
// scales every unit's limit by fleet_limit/total; otherwise it resets
// every limit to the unit's rated capacity. The new limits are pushed
// to all agents before the cycle counts as complete.
//
// Completion is published through a reusable signal: [Cycle.Next]
// returns a channel that the next completing cycle closes. Only the
// latest cycle is observable; cycles that complete while nobody waits
// are not queued.
//
// A failing cycle ends the loop. [Cycle.Finished] is closed and
// [Cycle.Err] reports the failure; waiters on Next must also watch
// Finished since no further cycle will complete.
package controller
