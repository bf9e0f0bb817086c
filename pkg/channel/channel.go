// Package channel owns one duplex transport connection: it reports state,
// serializes outbound frames, and emits decoded inbound events. It never
// reconnects on its own — that is the reconnect package's job.
package channel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/owtaylor/organized/pkg/protocol"
	"github.com/owtaylor/organized/pkg/wsconn"
)

// Frame wraps a decoded inbound event alongside a decode failure, since a
// malformed frame is itself meaningful to the consumer (it still occupies a
// slot in command/terminal-event correlation).
type Frame struct {
	Event     protocol.Event
	DecodeErr error
}

// Channel owns one wsconn.Transport for its lifetime. Once closed (by error
// or by Close), it never recovers; callers construct a new Channel per
// connection attempt.
type Channel struct {
	id        string
	transport wsconn.Transport

	mu       sync.Mutex
	sendMu   sync.Mutex
	closed   chan struct{}
	closeErr error
	once     sync.Once

	events chan Frame
}

// New wraps transport, starting the read loop immediately. The returned
// Channel is ready to Send and to range over Events().
func New(transport wsconn.Transport) *Channel {
	c := &Channel{
		id:        uuid.NewString(),
		transport: transport,
		closed:    make(chan struct{}),
		events:    make(chan Frame, 64),
	}
	go c.readLoop()
	return c
}

// Send writes one encoded frame. Safe for concurrent use; frames are
// serialized by sendMu: only one writer touches the transport at a time.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.transport.Send(ctx, frame); err != nil {
		c.fail(err)
		return err
	}
	return nil
}

// Events returns the channel of decoded inbound frames. It closes when the
// transport closes or errors, after the read loop has drained.
func (c *Channel) Events() <-chan Frame {
	return c.events
}

// Done is closed when the channel has transitioned out of the open state.
func (c *Channel) Done() <-chan struct{} {
	return c.closed
}

// Err returns the error that ended the channel, if any. Only meaningful
// after Done() is closed.
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeErr
}

// Close tears down the transport unconditionally.
func (c *Channel) Close() error {
	err := c.transport.Close()
	c.fail(err)
	return err
}

// fail marks the channel closed exactly once, recording the first error.
// It also closes the transport so any goroutine blocked in Recv unblocks.
func (c *Channel) fail(err error) {
	c.once.Do(func() {
		c.mu.Lock()
		c.closeErr = err
		c.mu.Unlock()
		close(c.closed)
		_ = c.transport.Close()
	})
}

// readLoop is the sole goroutine that calls transport.Recv, so it is the
// sole user of the underlying connection's read side.
func (c *Channel) readLoop() {
	defer close(c.events)
	for {
		raw, err := c.transport.Recv(context.Background())
		if err != nil {
			c.fail(err)
			return
		}
		event, decErr := protocol.Decode(raw)
		if decErr != nil {
			slog.Warn("channel: undecodable frame", "channel", c.id, "error", decErr)
		}
		select {
		case c.events <- Frame{Event: event, DecodeErr: decErr}:
		case <-c.closed:
			return
		}
	}
}
