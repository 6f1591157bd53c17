// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the two notions of time feedin runs on.
//
// Wall time bounds how long a host step may take. Code that measures
// it accepts a Clock: Real() in production, Fake() in tests, where
// WaitForTimers and Advance exhaust a step budget deterministically.
//
// Simulated time is owned by the host. A Sim is set by the gateway
// (and broadcast to every worker) at the start of each step, and the
// controller cycle sleeps on it with SleepUntil. Simulated time never
// moves unless the host steps.
package clock
