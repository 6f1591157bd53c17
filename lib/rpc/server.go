// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/feedin-foundation/feedin/lib/codec"
)

// ActionPing is answered by every Server. Dial uses it to decide that
// a freshly spawned peer is accepting requests.
const ActionPing = "ping"

// Body is the still-encoded body of a request.
type Body []byte

// Decode unpacks the body into v. An empty body leaves v untouched.
func (b Body) Decode(v any) error {
	if len(b) == 0 {
		return nil
	}
	if err := codec.UnmarshalPacked(b, v); err != nil {
		return fmt.Errorf("decoding request body: %w", err)
	}
	return nil
}

// ActionFunc handles one request. A nil result produces {ok: true}
// without data.
type ActionFunc func(ctx context.Context, body Body) (any, error)

type request struct {
	Action string `cbor:"action"`
	Body   []byte `cbor:"body,omitempty"`
}

// Response is the wire envelope of every reply.
type Response struct {
	OK    bool   `cbor:"ok"`
	Error string `cbor:"error,omitempty"`
	Code  string `cbor:"code,omitempty"`
	Data  []byte `cbor:"data,omitempty"`
}

// Server serves the request-response protocol on one address.
// Register actions with Handle before calling Serve.
type Server struct {
	address  string
	handlers map[string]ActionFunc
	logger   *slog.Logger

	listenOnce sync.Once
	listener   net.Listener
	listenErr  error

	// activeConnections lets Serve drain in-flight handlers before
	// returning.
	activeConnections sync.WaitGroup
}

// NewServer creates a server that will listen on address.
func NewServer(address string, logger *slog.Logger) *Server {
	server := &Server{
		address:  address,
		handlers: make(map[string]ActionFunc),
		logger:   logger,
	}
	server.Handle(ActionPing, func(context.Context, Body) (any, error) {
		return nil, nil
	})
	return server
}

// Handle registers handler for action. Panics on duplicates.
func (s *Server) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic(fmt.Sprintf("rpc.Server: duplicate handler for action %q", action))
	}
	s.handlers[action] = handler
}

// Listen binds the server's address without serving requests yet, so
// a caller can hand the address to peers before Serve runs. Serve
// calls it implicitly. A stale Unix socket file is removed first.
func (s *Server) Listen() error {
	s.listenOnce.Do(func() {
		network, target, err := SplitAddress(s.address)
		if err != nil {
			s.listenErr = err
			return
		}
		if network == "unix" {
			if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
				s.listenErr = fmt.Errorf("removing stale socket %s: %w", target, err)
				return
			}
		}
		listener, err := net.Listen(network, target)
		if err != nil {
			s.listenErr = fmt.Errorf("listening on %s: %w", s.address, err)
			return
		}
		s.listener = listener
	})
	return s.listenErr
}

// Address returns the address peers should dial. After Listen it
// reflects the bound address, which differs from the configured one
// for TCP port 0.
func (s *Server) Address() string {
	if s.listener != nil && s.listener.Addr().Network() == "tcp" {
		return JoinAddress("tcp", s.listener.Addr().String())
	}
	return s.address
}

// Serve accepts connections and dispatches requests until ctx is
// cancelled, then stops accepting and waits for active handlers.
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}
	listener := s.listener
	defer func() {
		listener.Close()
		if network, target, _ := SplitAddress(s.address); network == "unix" {
			os.Remove(target)
		}
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Debug("rpc server listening", "address", s.Address())

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	readTimeout    = 30 * time.Second
	writeTimeout   = 10 * time.Second
	maxRequestSize = 16 << 20
)

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var incoming request
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&incoming); err != nil {
		if errors.Is(err, io.EOF) {
			// Client connected but sent nothing.
			return
		}
		s.writeResponse(conn, Response{Error: fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if incoming.Action == "" {
		s.writeResponse(conn, Response{Error: "missing required field: action"})
		return
	}

	handler, exists := s.handlers[incoming.Action]
	if !exists {
		s.writeResponse(conn, Response{Error: fmt.Sprintf("unknown action %q", incoming.Action)})
		return
	}

	result, err := handler(ctx, Body(incoming.Body))
	if err != nil {
		s.logger.Debug("action failed", "action", incoming.Action, "error", err)
		s.writeResponse(conn, Response{Error: err.Error(), Code: codeFor(err)})
		return
	}

	response := Response{OK: true}
	if result != nil {
		data, err := codec.MarshalPacked(result)
		if err != nil {
			s.writeResponse(conn, Response{Error: fmt.Sprintf("internal: marshaling response: %v", err)})
			return
		}
		response.Data = data
	}
	s.writeResponse(conn, response)
}

// writeResponse failures are only logged: the connection is closing
// regardless and the peer sees a read error.
func (s *Server) writeResponse(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}
