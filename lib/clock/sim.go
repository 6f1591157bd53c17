// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"context"
	"sync"
	"time"

	"github.com/feedin-foundation/feedin/lib/signal"
)

// Sim is a simulated clock whose time is set externally by the host
// simulation. It never advances on its own: goroutines sleeping on it
// wake only when SetTime moves it past their deadline.
//
// A new Sim starts one second before the session start so that the
// first tick scheduled at the start time waits for the host's first
// step.
type Sim struct {
	mu      sync.Mutex
	start   time.Time
	current time.Time
	changed *signal.Signal
}

// NewSim returns a Sim for a session starting at start.
func NewSim(start time.Time) *Sim {
	return &Sim{
		start:   start,
		current: start.Add(-time.Second),
		changed: signal.New(),
	}
}

// Start returns the session start time.
func (s *Sim) Start() time.Time {
	return s.start
}

// Now returns the current simulated time.
func (s *Sim) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// SetTime moves the clock to t and wakes sleepers whose deadline is
// reached. Simulated time is monotonic: a t before the current time
// is ignored and reported as false.
func (s *Sim) SetTime(t time.Time) bool {
	s.mu.Lock()
	if t.Before(s.current) {
		s.mu.Unlock()
		return false
	}
	s.current = t
	s.mu.Unlock()

	s.changed.Fire()
	return true
}

// SetOffset sets the clock to the session start plus offset. Hosts
// express simulated time as seconds since the start.
func (s *Sim) SetOffset(offset time.Duration) bool {
	return s.SetTime(s.start.Add(offset))
}

// Offset returns the current time as a duration since the session
// start. It is negative before the first SetTime.
func (s *Sim) Offset() time.Duration {
	return s.Now().Sub(s.start)
}

// SleepUntil blocks until the simulated time reaches deadline or ctx
// is done, in which case it returns ctx.Err().
func (s *Sim) SleepUntil(ctx context.Context, deadline time.Time) error {
	for {
		// Capture the wakeup channel before reading the time so a
		// SetTime between the two cannot be missed.
		changed := s.changed.Wait()
		if !s.Now().Before(deadline) {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
