package fsync

import "github.com/owtaylor/organized/pkg/fserr"

// Type aliases give callers a stable public name for each error shape
// without requiring an import of pkg/fserr directly.
type (
	ProtocolError = fserr.ProtocolError
	RemoteError   = fserr.RemoteError
	UsageError    = fserr.UsageError
)

// ErrConnectionClosed is returned by any in-flight operation whose channel
// closed before a terminal event arrived.
var ErrConnectionClosed = fserr.ErrConnectionClosed

// IsConnectionClosed reports whether err is (or wraps) ErrConnectionClosed.
func IsConnectionClosed(err error) bool {
	return fserr.IsConnectionClosed(err)
}
