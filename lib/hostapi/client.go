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

// Client drives a remote gateway through the step protocol. Its
// methods mirror those of [gateway.Gateway].
type Client struct {
	client *rpc.Client
	// stepper carries step calls, which block for up to the gateway's
	// step budget and so wait without a response timeout.
	stepper *rpc.Client
}

// NewClient returns a step protocol client calling the gateway behind
// client.
func NewClient(client *rpc.Client) *Client {
	return &Client{client: client, stepper: client.WithResponseTimeout(0)}
}

func (c *Client) Init(ctx context.Context, request gateway.InitRequest) (schema.Meta, error) {
	var meta schema.Meta
	err := c.client.Call(ctx, ActionInit, InitRequest{
		SessionID:  request.SessionID,
		StartDate:  request.StartTime.UTC().Format(time.RFC3339),
		Controller: request.Controller,
	}, &meta)
	return meta, err
}

func (c *Client) Create(ctx context.Context, count int, model string, params schema.Params) ([]schema.Entity, error) {
	var response createResponse
	err := c.client.Call(ctx, ActionCreate, CreateRequest{Count: count, Model: model, Params: params}, &response)
	return response.Entities, err
}

func (c *Client) SetupDone(ctx context.Context) error {
	return c.client.Call(ctx, ActionSetupDone, nil, nil)
}

func (c *Client) Step(ctx context.Context, t int64, inputs schema.Inputs) (int64, error) {
	var response stepResponse
	if err := c.stepper.Call(ctx, ActionStep, StepRequest{Time: t, Inputs: inputs}, &response); err != nil {
		return 0, err
	}
	return response.Next, nil
}

// Stop asks the gateway to end the session.
func (c *Client) Stop(ctx context.Context) error {
	return c.client.Call(ctx, ActionStop, nil, nil)
}
