// Package fserr defines the error taxonomy shared by the file-sync client
// packages. It has no dependencies on any other package in this module so
// that commandqueue, channel, handleregistry, and reconnect can all
// construct and return these types without an import cycle through fsync.
package fserr

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectionClosed is returned to a pending command when the channel
	// closes or errors before a terminal event arrives.
	ErrConnectionClosed = errors.New("fsync: connection closed")

	// ErrProtocolDecode is the sentinel every ProtocolError unwraps to, so
	// errors.Is(err, ErrProtocolDecode) matches any protocol violation,
	// including an undecodable inbound frame.
	ErrProtocolDecode = errors.New("fsync: protocol decode error")
)

// ProtocolError reports an inbound frame that violated the wire protocol:
// an undecodable frame, or an unexpected terminal type for the command at
// the head of the queue. An error event with nothing pending is logged and
// dropped by the command queue, not reported as a ProtocolError.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("fsync: protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return ErrProtocolDecode
}

// RemoteError carries a server-sent error event verbatim.
type RemoteError struct {
	Message string
	Path    string
}

func (e *RemoteError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("fsync: remote error on %q: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("fsync: remote error: %s", e.Message)
}

// UsageError reports caller misuse: a second iteration of a FileStream, or a
// write to a file that has already been closed.
type UsageError struct {
	Op     string
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("fsync: misuse of %s: %s", e.Op, e.Reason)
}

// IsConnectionClosed reports whether err is (or wraps) ErrConnectionClosed.
func IsConnectionClosed(err error) bool {
	return errors.Is(err, ErrConnectionClosed)
}
