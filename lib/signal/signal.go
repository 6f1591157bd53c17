// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package signal provides a reusable broadcast rendezvous: a signal
// that is fired once per generation and immediately replaced by a
// fresh, unfired one.
//
// A waiter captures the channel of the current generation with Wait
// and blocks on it. Fire closes that channel, waking every waiter that
// captured it, and installs a new channel for the next generation. A
// waiter that captures the channel after Fire sees the new generation
// and is only woken by the next Fire: missed generations are never
// buffered.
//
//	next := s.Wait()   // register interest before triggering work
//	trigger()
//	select {
//	case <-next:
//	case <-ctx.Done():
//	}
package signal

import "sync"

// Signal is a generation-counted broadcast. The zero value is not
// usable; create with New.
type Signal struct {
	mu         sync.Mutex
	current    chan struct{}
	generation uint64
}

// New returns a Signal at generation zero.
func New() *Signal {
	return &Signal{current: make(chan struct{})}
}

// Wait returns the channel of the current generation. It is closed by
// the next Fire.
func (s *Signal) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Fire wakes every waiter of the current generation and starts a new
// one. Returns the number of the generation that was completed
// (1 for the first Fire).
func (s *Signal) Fire() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.current)
	s.current = make(chan struct{})
	s.generation++
	return s.generation
}

// Generation returns how many times Fire has been called.
func (s *Signal) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}
