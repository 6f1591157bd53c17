// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "errors"

// Error classes. Every failure in the control path wraps one of these
// (or rpc.ErrConnectionLost) and is fatal to the session: nothing in
// feedin retries a failed step or cycle.
var (
	// ErrProtocol reports a host request feedin cannot interpret:
	// an unknown model, attribute or unit, invalid parameters, or an
	// attribute fed by more than one source.
	ErrProtocol = errors.New("protocol error")

	// ErrBudgetExceeded reports that no controller cycle completed
	// within the wall-time budget of a step.
	ErrBudgetExceeded = errors.New("step budget exceeded")

	// ErrDuplicateRegistration reports a unit registering with the
	// controller more than once. It indicates a defect, not a runtime
	// condition.
	ErrDuplicateRegistration = errors.New("duplicate registration")

	// ErrInvariant reports that capped limits did not sum to the
	// fleet limit.
	ErrInvariant = errors.New("controller invariant violated")
)
