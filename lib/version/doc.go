// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the feedin
// binaries.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit] -- short git SHA of the build
//   - [GitDirty] -- "true" if there were uncommitted changes
//   - [BuildTime] -- UTC timestamp of the build
//   - [Version] -- semantic version string (set manually for releases)
//
// Workers report [Info] in their status; the gateway uses [Check] to
// warn when a worker binary was built from a different tree.
package version
