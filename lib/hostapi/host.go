// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package hostapi

import (
	"context"
	"time"

	"github.com/feedin-foundation/feedin/lib/gateway"
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
)

// RemoteHost is the gateway's stub for a host reached over RPC.
type RemoteHost struct {
	client *rpc.Client
}

// NewRemoteHost returns a stub calling the host behind client.
func NewRemoteHost(client *rpc.Client) *RemoteHost {
	return &RemoteHost{client: client}
}

func (h *RemoteHost) SetData(ctx context.Context, push schema.LimitPush) error {
	return h.client.Call(ctx, ActionSetData, setDataRequest{Data: push}, nil)
}

func (h *RemoteHost) RelatedEntities(ctx context.Context, agentIDs []string) (map[string][]string, error) {
	var response relatedResponse
	if err := h.client.Call(ctx, ActionGetRelatedEntities, relatedRequest{IDs: agentIDs}, &response); err != nil {
		return nil, err
	}
	return response.Relations, nil
}

// Watch reports the loss of the host connection. The returned channel
// receives an error wrapping rpc.ErrConnectionLost and is closed when
// ctx ends.
func (h *RemoteHost) Watch(ctx context.Context, interval time.Duration) <-chan error {
	return h.client.Monitor(ctx, interval)
}

// HandleHost serves the host callbacks of host on server.
func HandleHost(server *rpc.Server, host gateway.Host) {
	server.Handle(ActionSetData, func(ctx context.Context, body rpc.Body) (any, error) {
		var request setDataRequest
		if err := body.Decode(&request); err != nil {
			return nil, err
		}
		return nil, host.SetData(ctx, request.Data)
	})
	server.Handle(ActionGetRelatedEntities, func(ctx context.Context, body rpc.Body) (any, error) {
		var request relatedRequest
		if err := body.Decode(&request); err != nil {
			return nil, err
		}
		relations, err := host.RelatedEntities(ctx, request.IDs)
		if err != nil {
			return nil, err
		}
		return relatedResponse{Relations: relations}, nil
	})
}
