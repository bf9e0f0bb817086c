// Package wsconn provides the concrete duplex transport the channel package
// dials: a text-message websocket connection via github.com/coder/websocket.
// The Transport interface is the seam that keeps the rest of the client
// transport-agnostic and testable with an in-memory fake.
package wsconn

import (
	"context"
	"fmt"

	"github.com/coder/websocket"
)

// Transport is one duplex text-message connection. Implementations need not
// be safe for concurrent Send calls from multiple goroutines; the channel
// package serializes writes itself.
type Transport interface {
	// Send writes one frame. Safe to call concurrently with Recv.
	Send(ctx context.Context, frame []byte) error
	// Recv blocks for the next inbound frame. Returns an error (usually
	// wrapping a connection-lost classification) when the connection ends.
	Recv(ctx context.Context) ([]byte, error)
	// Close tears down the connection. Idempotent.
	Close() error
}

// wsTransport adapts *websocket.Conn to Transport.
type wsTransport struct {
	conn *websocket.Conn
}

// Dial opens a websocket connection to endpointURL and returns a Transport.
func Dial(ctx context.Context, endpointURL string) (Transport, error) {
	conn, _, err := websocket.Dial(ctx, endpointURL, nil)
	if err != nil {
		return nil, fmt.Errorf("wsconn: dial %s: %w", endpointURL, err)
	}
	// File content can exceed the library's default 32KiB read limit.
	conn.SetReadLimit(32 << 20)
	return &wsTransport{conn: conn}, nil
}

func (t *wsTransport) Send(ctx context.Context, frame []byte) error {
	if err := t.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return classify(err)
	}
	return nil
}

func (t *wsTransport) Recv(ctx context.Context) ([]byte, error) {
	_, data, err := t.conn.Read(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return data, nil
}

func (t *wsTransport) Close() error {
	return t.conn.Close(websocket.StatusNormalClosure, "")
}
