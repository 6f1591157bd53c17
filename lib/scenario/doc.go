// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package scenario runs a wind fleet simulation against a gateway.
//
// A [Scenario] is read from a JSONC file: the session start, duration
// and step size, the controller configuration, the wind series and the
// unit groups. [Host] plays the host simulation: it owns a [wecs.Sim]
// with one unit per configured unit and implements [gateway.Host] so
// limits pushed by the gateway reach the units on the next step.
// [Run] drives a [Session] (an in-process [gateway.Gateway] or a
// remote one through [hostapi.Client]) step by step and returns a
// [Report] of aggregate output and applied limits, with a BLAKE3
// digest of the limit trajectory for comparing runs.
package scenario
