// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for the feedin
// gateway.
//
// Configuration is loaded from a single file specified by either the
// FEEDIN_CONFIG environment variable (via [Load]) or a --config flag
// (via [LoadFile]). There is no file discovery and no fallback search
// path. Fields missing from the file keep their [Default] values.
//
// The file may carry environment-specific sections (development,
// production) whose worker settings override the base values when
// [Config].Environment matches. Production defaults to exec workers
// and a stricter connect timeout.
//
// Path fields support ${HOME}, ${FEEDIN_ROOT} and ${VAR:-default}
// expansion after loading.
//
// [Config.ResolveGateway] converts a validated configuration into the
// [gateway.Config] the gateway binary runs with.
package config
