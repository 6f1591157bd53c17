// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package process

// DieWithParent is a no-op outside Linux; workers there rely on the
// gateway's explicit stop request and kill on finalize.
func DieWithParent() error {
	return nil
}
