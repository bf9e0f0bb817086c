package reconnect

import (
	"context"
	"errors"

	"github.com/owtaylor/organized/pkg/wsconn"
)

// RecoveryAction labels a transport failure for structured logging. It has no
// bearing on the RECONNECT_WAIT-vs-DISCONNECTED choice, which Supervisor
// derives solely from hasOpenHandles in afterLossLocked; RecoveryAction exists
// so an operator reading logs can tell a dropped connection from a context
// cancellation at a glance.
type RecoveryAction int

const (
	// ActionNone means err does not warrant a distinct log classification:
	// nil, or a cancellation the caller already expects.
	ActionNone RecoveryAction = iota
	// ActionConnectionLost means err originated from a lost or closed
	// transport rather than a protocol-level problem.
	ActionConnectionLost
	// ActionProtocolError means err came from the server sending something
	// the protocol layer rejected, not from the transport itself.
	ActionProtocolError
)

func (a RecoveryAction) String() string {
	switch a {
	case ActionConnectionLost:
		return "connection_lost"
	case ActionProtocolError:
		return "protocol_error"
	default:
		return "none"
	}
}

// Classify labels err for the log line Supervisor emits when a connection
// attempt fails or an established channel is lost. It defers to
// wsconn.IsConnectionLost to distinguish a dropped transport from a decode or
// protocol-level failure; context cancellation is its own category since it
// usually means Disconnect ran concurrently, not that the network failed.
func Classify(err error) RecoveryAction {
	if err == nil {
		return ActionNone
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionNone
	}
	if wsconn.IsConnectionLost(err) {
		return ActionConnectionLost
	}
	return ActionProtocolError
}
