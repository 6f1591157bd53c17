// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc is feedin's process transport: a CBOR request-response
// protocol over Unix or TCP sockets used between the gateway, its
// worker processes and the host adapter.
//
// Each connection carries exactly one request and one response, so
// concurrent calls to the same peer use separate connections and never
// reorder within a call. A request is an action name plus an optional
// body; the response carries ok, an error message with a stable error
// code, and an optional data payload. Bodies and payloads are CBOR,
// LZ4-compressed above codec.CompressionThreshold.
//
// Addresses name their network explicitly ("unix:/run/feedin/w0.sock",
// "tcp:127.0.0.1:5679") or implicitly: anything containing a slash is
// a Unix socket path, anything else a TCP host:port.
//
// Errors survive the process boundary: a handler error that wraps a
// sentinel registered with RegisterCode reaches the caller as a
// *CallError for which errors.Is(err, sentinel) holds. Transport
// failures wrap ErrConnectionLost.
package rpc
