// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the types exchanged across feedin's
// boundaries: the host step protocol (capability descriptor, entity
// descriptors, nested host inputs, limit pushes), the unit parameters
// and controller configuration passed through it, and the error
// taxonomy shared by every component.
//
// Types that cross the host boundary carry `json` tags; the CBOR codec
// reads the same tags.
package schema
