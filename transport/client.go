// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Conn is the client side of a server connection.
type Conn interface {
	// Call sends req and waits for its reply. A reply carrying a
	// [RemoteError] is returned together with that error.
	Call(ctx context.Context, req *Envelope) (*Envelope, error)

	// Notifications delivers envelopes the server sends unprompted.
	// The channel is closed when the connection ends.
	Notifications() <-chan *Envelope

	// Received counts the notifications read from the server so far,
	// including those not yet taken from Notifications.
	Received() uint64

	Close() error
}

var _ Conn = (*Client)(nil)

// ClientOptions configures a [Client].
type ClientOptions struct {
	// CompressThreshold is passed to [EncodeFrame].
	CompressThreshold int

	Logger *slog.Logger
}

// Client correlates requests and replies over a [Frames] stream.
type Client struct {
	frames    Frames
	threshold int
	logger    *slog.Logger

	mu      sync.Mutex
	nextSeq uint64
	pending map[uint64]chan *Envelope
	err     error

	queue         []*Envelope
	received      uint64
	queued        chan struct{}
	notifications chan *Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient starts reading frames. The client owns frames from now
// on.
func NewClient(frames Frames, options ClientOptions) *Client {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		frames:        frames,
		threshold:     options.CompressThreshold,
		logger:        logger,
		pending:       make(map[uint64]chan *Envelope),
		queued:        make(chan struct{}, 1),
		notifications: make(chan *Envelope),
		done:          make(chan struct{}),
	}
	go c.readLoop()
	go c.deliverLoop()
	return c
}

func (c *Client) Call(ctx context.Context, req *Envelope) (*Envelope, error) {
	reply := make(chan *Envelope, 1)

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.nextSeq++
	seq := c.nextSeq
	c.pending[seq] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, seq)
		c.mu.Unlock()
	}()

	outgoing := *req
	outgoing.Seq = seq
	outgoing.Reply = false
	frame, err := EncodeFrame(&outgoing, c.threshold)
	if err != nil {
		return nil, err
	}
	if err := c.frames.WriteFrame(frame); err != nil {
		c.fail(err)
		return nil, fmt.Errorf("sending %s: %w", req.Op, errors.Join(ErrClosed, err))
	}

	select {
	case env := <-reply:
		return replyResult(env)
	case <-c.done:
		// The reply may have been read just before the close.
		select {
		case env := <-reply:
			return replyResult(env)
		default:
			return nil, c.Err()
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for %s reply: %w", req.Op, ctx.Err())
	}
}

func replyResult(env *Envelope) (*Envelope, error) {
	if env.Error != nil {
		return env, env.Error
	}
	return env, nil
}

func (c *Client) Notifications() <-chan *Envelope { return c.notifications }

func (c *Client) Received() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns why the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close ends the connection. Pending calls fail with [ErrClosed].
func (c *Client) Close() error {
	c.fail(ErrClosed)
	return nil
}

func (c *Client) fail(cause error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		if errors.Is(cause, ErrClosed) {
			c.err = ErrClosed
		} else {
			c.err = fmt.Errorf("%w: %w", ErrClosed, cause)
		}
		c.mu.Unlock()
		c.frames.Close()
		close(c.done)
	})
}

func (c *Client) readLoop() {
	for {
		frame, err := c.frames.ReadFrame()
		if err != nil {
			c.fail(err)
			return
		}
		env, err := DecodeFrame(frame)
		if err != nil {
			c.logger.Warn("dropping undecodable frame", "error", err)
			continue
		}
		if !env.Reply {
			c.mu.Lock()
			c.queue = append(c.queue, env)
			c.received++
			c.mu.Unlock()
			select {
			case c.queued <- struct{}{}:
			default:
			}
			continue
		}
		c.mu.Lock()
		reply, ok := c.pending[env.Seq]
		c.mu.Unlock()
		if !ok {
			c.logger.Warn("reply for unknown request", "seq", env.Seq, "op", env.Op)
			continue
		}
		reply <- env
	}
}

// deliverLoop moves queued notifications to the unbuffered channel.
func (c *Client) deliverLoop() {
	defer close(c.notifications)
	for {
		c.mu.Lock()
		var next *Envelope
		if len(c.queue) > 0 {
			next = c.queue[0]
			c.queue[0] = nil
			c.queue = c.queue[1:]
		}
		c.mu.Unlock()

		if next == nil {
			select {
			case <-c.queued:
				continue
			case <-c.done:
				return
			}
		}
		select {
		case c.notifications <- next:
		case <-c.done:
			return
		}
	}
}
