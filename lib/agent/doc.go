// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the control agent of one power unit.
//
// An agent caches two values: the unit's last reported output and the
// last power limit the controller assigned to it. The gateway writes
// the output every step; the controller reads outputs and writes
// limits once per cycle; the gateway reads the limits back to push
// them to the host.
//
// Three implementations share the [Agent] interface:
//
//   - [Unit] holds the state in memory. Workers host one per unit.
//   - [Remote] is a stub that reaches a Unit in another process over
//     an [rpc.Client]. The gateway and the controller only ever see
//     Remote agents.
//   - [Host] is not an Agent but the worker-side dispatcher that serves
//     the agent actions for every Unit living in one worker.
//
// # Registration
//
// An agent registers with the controller exactly once, at creation
// ([Create]). The controller rejects a second registration of the same
// id with [schema.ErrDuplicateRegistration]. Agents created inside a
// worker register through [RemoteRegistrar], which calls the
// controller's registration action on the gateway.
//
// # Limits
//
// A limit is a *float64. nil means "no cap": [Unit.AcceptLimit]
// normalizes it to the unit's rated capacity. [Unit.PendingLimit]
// returns nil only before the first limit was accepted.
package agent
