// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostapi exposes a gateway to a host simulation over RPC.
//
// The host and the gateway each run an [rpc.Server]. The gateway
// serves the step protocol (init, create, setup_done, step, stop); the
// host serves the callbacks the gateway makes during setup and at the
// end of each step (get_related_entities, set_data).
//
// [Server] serves the step protocol for a [gateway.Gateway] and
// [Client] calls it. [RemoteHost] is the gateway-side stub for the
// host's callbacks and [HandleHost] serves them for an in-process
// [gateway.Host].
package hostapi

import (
	"github.com/feedin-foundation/feedin/lib/schema"
)

// Step protocol actions, served by the gateway.
const (
	ActionInit      = "init"
	ActionCreate    = "create"
	ActionSetupDone = "setup_done"
	ActionStep      = "step"
	ActionStop      = "stop"
)

// Host callback actions, served by the host.
const (
	ActionSetData            = "set_data"
	ActionGetRelatedEntities = "get_related_entities"
)

// InitRequest starts a session. StartDate is RFC 3339.
type InitRequest struct {
	SessionID  string                  `cbor:"sid"`
	StartDate  string                  `cbor:"start_date"`
	Controller schema.ControllerConfig `cbor:"controller_config"`
}

// CreateRequest asks for Count agents of Model.
type CreateRequest struct {
	Count  int           `cbor:"num"`
	Model  string        `cbor:"model"`
	Params schema.Params `cbor:"params"`
}

type createResponse struct {
	Entities []schema.Entity `cbor:"entities"`
}

// StepRequest advances the session to Time (seconds since the start).
type StepRequest struct {
	Time   int64         `cbor:"time"`
	Inputs schema.Inputs `cbor:"inputs"`
}

type stepResponse struct {
	Next int64 `cbor:"next"`
}

type setDataRequest struct {
	Data schema.LimitPush `cbor:"data"`
}

type relatedRequest struct {
	IDs []string `cbor:"ids"`
}

type relatedResponse struct {
	Relations map[string][]string `cbor:"relations"`
}
