// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"errors"
	"fmt"
	"sync"
)

// ErrConnectionLost is wrapped by every error caused by an unreachable
// or failing peer, as opposed to an error the peer's handler returned.
var ErrConnectionLost = errors.New("connection lost")

// CallError is returned by Client.Call when the server answered with
// ok=false.
type CallError struct {
	Action  string
	Message string
	Code    string

	sentinel error
}

func (e *CallError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%q failed [%s]: %s", e.Action, e.Code, e.Message)
	}
	return fmt.Sprintf("%q failed: %s", e.Action, e.Message)
}

// Unwrap returns the sentinel registered for Code, if any.
func (e *CallError) Unwrap() error {
	return e.sentinel
}

var (
	codesMu sync.RWMutex
	codes   = map[string]error{}
	// codeOrder keeps lookups deterministic when an error wraps more
	// than one registered sentinel: the first registered code wins.
	codeOrder []string
)

// RegisterCode associates a stable wire code with a sentinel error.
// Both sides of a connection must register the same table, normally
// from an init function. Panics on a conflicting registration.
func RegisterCode(code string, sentinel error) {
	codesMu.Lock()
	defer codesMu.Unlock()
	if existing, ok := codes[code]; ok && existing != sentinel {
		panic(fmt.Sprintf("rpc: code %q already registered for %v", code, existing))
	}
	if _, ok := codes[code]; !ok {
		codeOrder = append(codeOrder, code)
	}
	codes[code] = sentinel
}

func codeFor(err error) string {
	codesMu.RLock()
	defer codesMu.RUnlock()
	for _, code := range codeOrder {
		if errors.Is(err, codes[code]) {
			return code
		}
	}
	return ""
}

func sentinelFor(code string) error {
	if code == "" {
		return nil
	}
	codesMu.RLock()
	defer codesMu.RUnlock()
	return codes[code]
}
