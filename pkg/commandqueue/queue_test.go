package commandqueue

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owtaylor/organized/pkg/fserr"
	"github.com/owtaylor/organized/pkg/protocol"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  [][]byte
	sendErr error
}

func (f *fakeSender) Send(_ context.Context, frame []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, frame)
	return nil
}

func TestSubmitResolvesInFIFOOrder(t *testing.T) {
	sender := &fakeSender{}
	q := New(sender)

	wait1, err := q.Submit(context.Background(), []byte(`{"type":"commit","message":"a"}`), protocol.TypeCommitted)
	require.NoError(t, err)
	wait2, err := q.Submit(context.Background(), []byte(`{"type":"commit","message":"b"}`), protocol.TypeCommitted)
	require.NoError(t, err)

	assert.True(t, q.Dispatch(protocol.Event{Type: protocol.TypeCommitted}, nil))
	assert.True(t, q.Dispatch(protocol.Event{Type: protocol.TypeCommitted}, nil))

	_, err1 := wait1()
	_, err2 := wait2()
	assert.NoError(t, err1)
	assert.NoError(t, err2)
}

func TestUnsolicitedUpdateBypassesQueue(t *testing.T) {
	q := New(&fakeSender{})
	handled := q.Dispatch(protocol.Event{Type: protocol.TypeFileUpdated, Handle: "1"}, nil)
	assert.False(t, handled, "file_updated must never be treated as terminal")
}

func TestErrorEventRejectsHeadWithRemoteError(t *testing.T) {
	sender := &fakeSender{}
	q := New(sender)
	wait, err := q.Submit(context.Background(), []byte(`{"type":"commit"}`), protocol.TypeCommitted)
	require.NoError(t, err)

	assert.True(t, q.Dispatch(protocol.Event{Type: protocol.TypeError, Message: "nope"}, nil))

	_, waitErr := wait()
	var remoteErr *fserr.RemoteError
	require.ErrorAs(t, waitErr, &remoteErr)
	assert.Equal(t, "nope", remoteErr.Message)
}

func TestErrorEventWithEmptyQueueIsDropped(t *testing.T) {
	q := New(&fakeSender{})
	handled := q.Dispatch(protocol.Event{Type: protocol.TypeError, Message: "unsolicited"}, nil)
	assert.True(t, handled, "error is still a terminal-shaped event even with nothing pending")
}

func TestUnexpectedTerminalTypeIsProtocolError(t *testing.T) {
	sender := &fakeSender{}
	q := New(sender)
	wait, err := q.Submit(context.Background(), []byte(`{"type":"commit"}`), protocol.TypeCommitted)
	require.NoError(t, err)

	assert.True(t, q.Dispatch(protocol.Event{Type: protocol.TypeFileOpened, Handle: "1", Content: "x"}, nil))

	_, waitErr := wait()
	var protoErr *fserr.ProtocolError
	require.ErrorAs(t, waitErr, &protoErr)
}

func TestDecodeFailureDrainsHeadWithProtocolError(t *testing.T) {
	sender := &fakeSender{}
	q := New(sender)
	wait, err := q.Submit(context.Background(), []byte(`{"type":"commit"}`), protocol.TypeCommitted)
	require.NoError(t, err)

	assert.True(t, q.Dispatch(protocol.Event{}, errors.New("bad json")))

	_, waitErr := wait()
	var protoErr *fserr.ProtocolError
	require.ErrorAs(t, waitErr, &protoErr)
}

func TestDrainOnCloseRejectsAllPending(t *testing.T) {
	sender := &fakeSender{}
	q := New(sender)
	wait1, err := q.Submit(context.Background(), []byte(`{"type":"commit"}`), protocol.TypeCommitted)
	require.NoError(t, err)
	wait2, err := q.Submit(context.Background(), []byte(`{"type":"commit"}`), protocol.TypeCommitted)
	require.NoError(t, err)

	q.DrainOnClose()

	_, err1 := wait1()
	_, err2 := wait2()
	assert.ErrorIs(t, err1, fserr.ErrConnectionClosed)
	assert.ErrorIs(t, err2, fserr.ErrConnectionClosed)
}

func TestSubmitFailsFastOnSendError(t *testing.T) {
	sender := &fakeSender{sendErr: errors.New("write failed")}
	q := New(sender)

	_, err := q.Submit(context.Background(), []byte(`{"type":"commit"}`), protocol.TypeCommitted)
	assert.Error(t, err)

	q.DrainOnClose()
}
