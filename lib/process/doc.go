// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the feedin binaries:
// reporting a fatal error before or after the structured logger
// exists, and tying a worker's lifetime to its parent gateway.
package process
