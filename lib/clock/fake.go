// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a wall clock that only moves when Advance is called.
// It is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	// timers is sorted by deadline.
	timers []fakeTimer
	// added is closed and replaced whenever a timer is added.
	added chan struct{}
}

type fakeTimer struct {
	deadline time.Time
	fire     chan time.Time
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial, added: make(chan struct{})}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After fires once the clock has been advanced by at least d. A
// non-positive d fires immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	fire := make(chan time.Time, 1)
	if d <= 0 {
		fire <- c.current
		return fire
	}
	timer := fakeTimer{deadline: c.current.Add(d), fire: fire}
	index, _ := slices.BinarySearchFunc(c.timers, timer.deadline, func(t fakeTimer, deadline time.Time) int {
		// Equal deadlines keep insertion order.
		if t.deadline.After(deadline) {
			return 1
		}
		return -1
	})
	c.timers = slices.Insert(c.timers, index, timer)
	close(c.added)
	c.added = make(chan struct{})
	return fire
}

// Advance moves the clock forward by d and fires every timer that is
// now due, earliest deadline first.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.current = c.current.Add(d)
	now := c.current
	due := 0
	for due < len(c.timers) && !c.timers[due].deadline.After(now) {
		due++
	}
	fired := slices.Clone(c.timers[:due])
	c.timers = slices.Delete(c.timers, 0, due)
	c.mu.Unlock()

	for _, timer := range fired {
		timer.fire <- now
	}
}

// WaitForTimers blocks until at least n timers are pending. Call it
// before Advance so the goroutine under test has armed its timer.
func (c *FakeClock) WaitForTimers(n int) {
	for {
		c.mu.Lock()
		pending, added := len(c.timers), c.added
		c.mu.Unlock()
		if pending >= n {
			return
		}
		<-added
	}
}

// PendingCount returns the number of timers not yet fired.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}
