package reconnect

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected RecoveryAction
	}{
		{name: "nil error", err: nil, expected: ActionNone},
		{name: "context canceled", err: context.Canceled, expected: ActionNone},
		{name: "context deadline exceeded", err: context.DeadlineExceeded, expected: ActionNone},
		{
			name:     "wrapped context canceled",
			err:      errors.Join(errors.New("attempt failed"), context.Canceled),
			expected: ActionNone,
		},
		{name: "io.EOF", err: io.EOF, expected: ActionConnectionLost},
		{name: "io.ErrUnexpectedEOF", err: io.ErrUnexpectedEOF, expected: ActionConnectionLost},
		{
			name:     "connection refused",
			err:      errors.New("dial tcp 127.0.0.1:8080: connection refused"),
			expected: ActionConnectionLost,
		},
		{
			name:     "decode failure is a protocol error, not a lost connection",
			err:      errors.New("fsync: decode frame: unexpected EOF in json"),
			expected: ActionProtocolError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}
