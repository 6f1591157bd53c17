// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock abstracts wall time. The gateway measures its step budget
// against a Clock so tests can exhaust the budget deterministically.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time after
	// duration d elapses. If d <= 0, the channel receives immediately.
	After(d time.Duration) <-chan time.Time
}

// Since returns the time elapsed on c since t.
func Since(c Clock, t time.Time) time.Duration {
	return c.Now().Sub(t)
}
