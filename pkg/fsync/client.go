// Package fsync is the public façade: it wires the channel, commandqueue,
// handleregistry, and reconnect packages into a single client and exposes
// the operations an embedding application calls (OpenFile, Commit, state
// inspection) without exposing any of the plumbing.
package fsync

import (
	"context"
	"log/slog"
	"time"

	"github.com/owtaylor/organized/pkg/channel"
	"github.com/owtaylor/organized/pkg/clientconfig"
	"github.com/owtaylor/organized/pkg/commandqueue"
	"github.com/owtaylor/organized/pkg/handleregistry"
	"github.com/owtaylor/organized/pkg/protocol"
	"github.com/owtaylor/organized/pkg/reconnect"
	"github.com/owtaylor/organized/pkg/wsconn"
)

// State mirrors the connection-state machine's values for callers that only
// need fsync, not reconnect, in their import graph.
type State = reconnect.State

const (
	Disconnected  = reconnect.Disconnected
	Connecting    = reconnect.Connecting
	Connected     = reconnect.Connected
	ReconnectWait = reconnect.ReconnectWait
)

// Client is the synchronization engine for one server connection. Besides
// the goroutines reconnect.Supervisor and channel.Channel start, it runs one
// route loop per channel, one goroutine per re-opened handle, and one per
// File open and close; all public methods are safe for concurrent use.
type Client struct {
	registry *handleregistry.Registry
	queue    *commandqueue.Queue
	sup      *reconnect.Supervisor
}

// NewClient constructs a Client in the DISCONNECTED state. No dial is
// attempted until ConnectNow is called or an operation needs the channel.
func NewClient(cfg clientconfig.Config) *Client {
	dial := func(ctx context.Context) (*channel.Channel, error) {
		t, err := wsconn.Dial(ctx, cfg.EndpointURL)
		if err != nil {
			return nil, err
		}
		return channel.New(t), nil
	}
	return NewClientWithDialer(cfg, dial)
}

// NewClientWithDialer is NewClient's implementation, parameterized over the
// dialer so tests (in this package and embedding applications) can
// substitute an in-memory transport instead of a real socket.
func NewClientWithDialer(cfg clientconfig.Config, dial reconnect.Dialer) *Client {
	c := &Client{
		registry: handleregistry.New(),
	}

	bo := reconnect.BackoffConfig{
		Initial:    cfg.InitialBackoff,
		Max:        cfg.MaxBackoff,
		Multiplier: cfg.BackoffMultiplier,
	}
	c.sup = reconnect.New(dial, c.hasOpenHandles, reconnect.Hooks{
		OnConnected: c.onConnected,
		OnLost:      c.onLost,
	}, bo)

	// Supervisor.Send already implements auto-connect-then-forward, so the
	// queue can use it directly as its Sender without fsync mediating.
	c.queue = commandqueue.New(c.sup)

	return c
}

func (c *Client) hasOpenHandles() bool {
	return len(c.registry.All()) > 0
}

// onConnected starts the route loop for the fresh channel and fires off
// re-establishment for every handle that survived from before the loss.
func (c *Client) onConnected(ch *channel.Channel) {
	go c.routeLoop(ch)
	c.reestablish()
}

// onLost rejects every command left stranded by the closed channel. Handles
// themselves are untouched: they remain registered so reestablish can retry
// them on the next CONNECTED transition.
func (c *Client) onLost(ch *channel.Channel, err error) {
	c.queue.DrainOnClose()
}

// routeLoop is the single consumer of one channel's decoded inbound frames.
// Every terminal event is offered to the command queue first; file_opened,
// file_updated, and file_written are additionally routed through the handle
// registry, since those three types carry content a file's stream must see
// regardless of whether they also answered a pending command.
func (c *Client) routeLoop(ch *channel.Channel) {
	for frame := range ch.Events() {
		c.route(frame)
	}
}

func (c *Client) route(frame channel.Frame) {
	if frame.DecodeErr != nil {
		c.queue.Dispatch(protocol.Event{}, frame.DecodeErr)
		return
	}

	ev := frame.Event
	c.queue.Dispatch(ev, nil)

	switch ev.Type {
	case protocol.TypeFileOpened, protocol.TypeFileUpdated, protocol.TypeFileWritten:
		c.registry.Route(ev)
	}
}

// reestablish re-opens every handle that had already completed its first
// open before the connection was lost. Handles still awaiting their very
// first file_opened are left to their original opener, which is either still
// waiting on the old channel's drain (and will see ErrConnectionClosed) or
// racing this same reconnect independently.
//
// Each handle is re-opened on its own goroutine: re-establishment only needs
// to eventually complete for every surviving handle, not to reopen handles
// in any particular order relative to each other.
func (c *Client) reestablish() {
	for _, of := range c.registry.All() {
		if !of.HasBeenOpened {
			continue
		}
		of := of
		go func() {
			frame, err := protocol.EncodeOpen(of.Path, of.Handle)
			if err != nil {
				slog.Error("fsync: encode re-open", "handle", of.Handle, "error", err)
				return
			}
			wait, err := c.queue.Submit(context.Background(), frame, protocol.TypeFileOpened)
			if err != nil {
				slog.Warn("fsync: re-open send failed", "handle", of.Handle, "path", of.Path, "error", err)
				return
			}
			if _, err := wait(); err != nil {
				slog.Warn("fsync: re-open failed", "handle", of.Handle, "path", of.Path, "error", err)
			}
		}()
	}
}

// ConnectNow forces an immediate connection attempt, bypassing any pending
// backoff wait, and blocks until CONNECTED or the single shared attempt
// fails.
func (c *Client) ConnectNow(ctx context.Context) error {
	return c.sup.ConnectNow(ctx)
}

// Disconnect tears down the current channel (if any) and forces
// DISCONNECTED regardless of open handles. A later operation or ConnectNow
// reconnects normally.
func (c *Client) Disconnect() {
	c.sup.Disconnect()
}

// GetState returns the current connection state.
func (c *Client) GetState() State {
	return c.sup.State()
}

// StateSince returns when the current connection state was entered, for the
// diagnostics server.
func (c *Client) StateSince() time.Time {
	return c.sup.Bus().Since()
}

// AddStateListener registers fn for every connection-state transition,
// invoking it immediately with the current state. The returned function
// unsubscribes; it is idempotent.
func (c *Client) AddStateListener(fn func(State)) (unsubscribe func()) {
	return c.sup.Bus().Subscribe(fn)
}

// Commit asks the server to commit the repository's current state with
// message, blocking until the server answers.
func (c *Client) Commit(ctx context.Context, message string) error {
	frame, err := protocol.EncodeCommit(message)
	if err != nil {
		return err
	}
	wait, err := c.queue.Submit(ctx, frame, protocol.TypeCommitted)
	if err != nil {
		return err
	}
	_, err = wait()
	return err
}

// HandleInfo is a diagnostics-friendly snapshot of one open handle.
type HandleInfo struct {
	Handle         string
	Path           string
	HasBeenOpened  bool
	BufferedEvents int
}

// DebugHandles returns a snapshot of every currently open handle, for the
// diagnostics server.
func (c *Client) DebugHandles() []HandleInfo {
	all := c.registry.All()
	out := make([]HandleInfo, 0, len(all))
	for _, of := range all {
		out = append(out, HandleInfo{
			Handle:         of.Handle,
			Path:           of.Path,
			HasBeenOpened:  of.HasBeenOpened,
			BufferedEvents: of.Sink.BufferedLen(),
		})
	}
	return out
}
