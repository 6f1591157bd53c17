// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway is the resource gateway between a host simulation
// and the agents controlling its units.
//
// The host drives the session through the step protocol:
//
//   - Init starts the workers, the controller cycle and the
//     controller's registration endpoint.
//   - Create spawns agents, placing agent i on worker i mod n. Each
//     agent has registered with the controller before Create returns.
//   - SetupDone learns which host entity every agent controls.
//   - Step broadcasts the new simulated time, forwards the unit
//     outputs, waits for a controller cycle and pushes the resulting
//     limits back through [Host.SetData].
//   - Stop and Finalize tear the session down.
//
// The wait in Step is bounded by the step budget: the wall time
// between the end of the previous step's wait and now may not exceed
// the step size. A step that runs out of budget fails with
// [schema.ErrBudgetExceeded]; no stale limits are pushed instead.
package gateway
