// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/feedin-foundation/feedin/lib/codec"
)

const (
	// dialTimeout covers only the connect phase of a call.
	dialTimeout = 5 * time.Second

	// DefaultResponseTimeout applies when the caller's context carries
	// no deadline. It matches the server's read + write timeouts plus
	// handler time.
	DefaultResponseTimeout = 45 * time.Second

	maxResponseSize = 16 << 20

	// dialPollInterval is how often Dial retries a peer that is not
	// accepting requests yet.
	dialPollInterval = 10 * time.Millisecond
)

// Client calls actions on one peer. Each Call opens its own
// connection, so a Client is safe for concurrent use.
type Client struct {
	address         string
	responseTimeout time.Duration
}

// NewClient returns a client for address without contacting it.
func NewClient(address string) *Client {
	return &Client{address: address, responseTimeout: DefaultResponseTimeout}
}

// WithResponseTimeout returns a client for the same peer whose calls
// wait up to d for a response when ctx has no deadline. A d of zero
// or less waits until ctx ends or the peer closes the connection; use
// it for actions whose handlers legitimately block longer than
// DefaultResponseTimeout.
func (c *Client) WithResponseTimeout(d time.Duration) *Client {
	return &Client{address: c.address, responseTimeout: d}
}

// Dial returns a client for address once the peer answers a ping,
// retrying until timeout elapses. Used right after spawning a peer,
// whose socket may not exist yet. A timeout wraps ErrConnectionLost.
func Dial(ctx context.Context, address string, timeout time.Duration) (*Client, error) {
	client := NewClient(address)

	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(dialPollInterval)
	defer ticker.Stop()

	for {
		attemptCtx, cancel := context.WithTimeout(ctx, dialPollInterval*10)
		err := client.Call(attemptCtx, ActionPing, nil, nil)
		cancel()
		if err == nil {
			return client, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("connecting to %s: timed out after %v: %w (last attempt: %v)",
				address, timeout, ErrConnectionLost, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Address returns the peer address.
func (c *Client) Address() string {
	return c.address
}

// Call sends action with args (nil for none) and decodes the response
// data into result (nil to discard).
//
// A handler failure returns a *CallError. A transport failure wraps
// ErrConnectionLost, unless ctx ended first, in which case the error
// wraps ctx.Err().
func (c *Client) Call(ctx context.Context, action string, args any, result any) error {
	outgoing := request{Action: action}
	if args != nil {
		body, err := codec.MarshalPacked(args)
		if err != nil {
			return fmt.Errorf("encoding %q request: %w", action, err)
		}
		outgoing.Body = body
	}

	response, err := c.send(ctx, outgoing)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("calling %q on %s: %w", action, c.address, ctx.Err())
		}
		return fmt.Errorf("calling %q on %s: %w: %w", action, c.address, ErrConnectionLost, err)
	}

	if !response.OK {
		return &CallError{
			Action:   action,
			Message:  response.Error,
			Code:     response.Code,
			sentinel: sentinelFor(response.Code),
		}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.UnmarshalPacked(response.Data, result); err != nil {
			return fmt.Errorf("decoding %q response: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, outgoing request) (*Response, error) {
	network, target, err := SplitAddress(c.address)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, network, target)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	// Closing the connection is the only way to interrupt a blocked
	// read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := codec.NewEncoder(conn).Encode(outgoing); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close so the server sees EOF after the request.
	if halfCloser, ok := conn.(interface{ CloseWrite() error }); ok {
		halfCloser.CloseWrite()
	}

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	} else if c.responseTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(c.responseTimeout))
	}

	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return &response, nil
}

// Monitor pings the peer every interval until ctx is done. The first
// failed ping is delivered on the returned channel, which is then
// closed; cancellation closes it without a value.
func (c *Client) Monitor(ctx context.Context, interval time.Duration) <-chan error {
	lost := make(chan error, 1)
	go func() {
		defer close(lost)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			pingCtx, cancel := context.WithTimeout(ctx, interval)
			err := c.Call(pingCtx, ActionPing, nil, nil)
			cancel()
			if err != nil && ctx.Err() == nil {
				lost <- err
				return
			}
		}
	}()
	return lost
}
