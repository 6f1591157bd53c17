// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides feedin's wire encoding: CBOR for every message
// exchanged between the gateway, its worker processes and the host
// adapter, plus LZ4 block compression for payloads large enough to
// benefit from it.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items, so
// the same logical message always produces identical bytes.
//
// For buffer-oriented operations:
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For stream-oriented operations (sockets):
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Types that only ever travel between feedin processes use `cbor`
// struct tags. Types that are also exchanged with the host simulation
// (entity descriptors, capability descriptors, params) use `json` tags;
// fxamacker/cbor reads `json` tags when `cbor` tags are absent.
package codec
