// Package wsconntest provides an in-memory fake wsconn.Transport, paired
// like a pipe, so higher-level packages can drive deterministic scenarios
// without a real network socket.
package wsconntest

import (
	"context"
	"errors"
	"sync"

	"github.com/owtaylor/organized/pkg/wsconn"
)

var errClosed = errors.New("wsconntest: transport closed")

// Pair returns two connected Transports: frames sent on one are received on
// the other. Server is the "remote" side a test drives directly; Client is
// the side handed to the code under test.
func Pair() (client wsconn.Transport, server *Server) {
	toServer := make(chan []byte, 64)
	toClient := make(chan []byte, 64)
	closeOnce := &sync.Once{}
	closed := make(chan struct{})

	c := &fakeTransport{send: toServer, recv: toClient, closed: closed, closeOnce: closeOnce}
	s := &Server{fakeTransport: fakeTransport{send: toClient, recv: toServer, closed: closed, closeOnce: closeOnce}}
	return c, s
}

type fakeTransport struct {
	send      chan []byte
	recv      chan []byte
	closed    chan struct{}
	closeOnce *sync.Once
}

func (t *fakeTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case <-t.closed:
		return errClosed
	default:
	}
	select {
	case t.send <- frame:
		return nil
	case <-t.closed:
		return errClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *fakeTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case f := <-t.recv:
		return f, nil
	case <-t.closed:
		return nil, errClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *fakeTransport) Close() error {
	t.closeOnce.Do(func() { close(t.closed) })
	return nil
}

// Server is the test-driven remote side of a Pair. It embeds fakeTransport
// so a test can Send/Recv exactly like a real server loop would, plus a
// few helpers for encoding JSON frames directly.
type Server struct {
	fakeTransport
}
