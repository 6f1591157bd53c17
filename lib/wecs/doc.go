// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package wecs simulates wind energy conversion systems for scenario
// runs.
//
// [Power] is the cubic power curve of one unit. [Sim] steps a fleet of
// units through a wind series, clipping each unit's output by its
// current limit. [OpenSeries] reads wind speeds from CSV files, plain
// or compressed with zstd (".zst") or lz4 (".lz4"). A row with fewer
// columns than units is reused by index modulo row length.
package wecs
