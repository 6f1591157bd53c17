// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package hostapi

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedin-foundation/feedin/lib/gateway"
	"github.com/feedin-foundation/feedin/lib/rpc"
	"github.com/feedin-foundation/feedin/lib/schema"
)

// Server serves the step protocol for one gateway.
type Server struct {
	gateway *gateway.Gateway
	server  *rpc.Server
	logger  *slog.Logger
}

// NewServer binds address and registers the step protocol actions.
func NewServer(address string, g *gateway.Gateway, logger *slog.Logger) (*Server, error) {
	s := &Server{
		gateway: g,
		server:  rpc.NewServer(address, logger),
		logger:  logger,
	}
	s.server.Handle(ActionInit, s.handleInit)
	s.server.Handle(ActionCreate, s.handleCreate)
	s.server.Handle(ActionSetupDone, s.handleSetupDone)
	s.server.Handle(ActionStep, s.handleStep)
	s.server.Handle(ActionStop, s.handleStop)
	if err := s.server.Listen(); err != nil {
		return nil, err
	}
	return s, nil
}

// Address returns the bound address.
func (s *Server) Address() string {
	return s.server.Address()
}

// Serve handles requests until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	return s.server.Serve(ctx)
}

func (s *Server) handleInit(ctx context.Context, body rpc.Body) (any, error) {
	var request InitRequest
	if err := body.Decode(&request); err != nil {
		return nil, err
	}
	start, err := time.Parse(time.RFC3339, request.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: start_date: %v", schema.ErrProtocol, err)
	}
	return s.gateway.Init(ctx, gateway.InitRequest{
		SessionID:  request.SessionID,
		StartTime:  start.UTC(),
		Controller: request.Controller,
	})
}

func (s *Server) handleCreate(ctx context.Context, body rpc.Body) (any, error) {
	var request CreateRequest
	if err := body.Decode(&request); err != nil {
		return nil, err
	}
	entities, err := s.gateway.Create(ctx, request.Count, request.Model, request.Params)
	if err != nil {
		return nil, err
	}
	return createResponse{Entities: entities}, nil
}

func (s *Server) handleSetupDone(ctx context.Context, _ rpc.Body) (any, error) {
	return nil, s.gateway.SetupDone(ctx)
}

func (s *Server) handleStep(ctx context.Context, body rpc.Body) (any, error) {
	var request StepRequest
	if err := body.Decode(&request); err != nil {
		return nil, err
	}
	next, err := s.gateway.Step(ctx, request.Time, request.Inputs)
	if err != nil {
		// Every step failure is fatal to the session.
		s.logger.Error("step failed", "time", request.Time, "error", err)
		s.gateway.Stop()
		return nil, err
	}
	return stepResponse{Next: next}, nil
}

func (s *Server) handleStop(context.Context, rpc.Body) (any, error) {
	s.gateway.Stop()
	return nil, nil
}
