package wsconn

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/coder/websocket"
)

// connLostError wraps a transport failure, marking it as connection-lost
// rather than a decode or protocol-level problem. The channel package
// forwards this classification to the reconnect supervisor unchanged.
type connLostError struct {
	err error
}

func (e *connLostError) Error() string { return e.err.Error() }
func (e *connLostError) Unwrap() error { return e.err }

// IsConnectionLost reports whether err originated from a lost or closed
// transport, as opposed to a local misuse or context cancellation.
func IsConnectionLost(err error) bool {
	if err == nil {
		return false
	}
	var cl *connLostError
	return errors.As(err, &cl) || isConnectionError(err)
}

// classify wraps transport-level errors so downstream code can distinguish
// "the connection is gone" from other failures without string-matching at
// every call site.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isConnectionError(err) {
		return &connLostError{err: err}
	}
	return err
}

// isConnectionError detects connection-level transport failures: EOF,
// closed-network errors, websocket close frames, and the usual OS-level
// substrings for reset/refused connections.
func isConnectionError(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}

	var closeErr websocket.CloseError
	if errors.As(err, &closeErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"connection closed",
		"use of closed network connection",
		"no such host",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
