package handleregistry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owtaylor/organized/pkg/protocol"
)

func drain(t *testing.T, of *OpenFile) []protocol.Event {
	t.Helper()
	of.Sink.Close()
	var got []protocol.Event
	for ev, err := range of.Sink.Events() {
		require.NoError(t, err)
		got = append(got, ev)
	}
	return got
}

func TestAllocateAssignsMonotonicDecimalHandles(t *testing.T) {
	r := New()
	a := r.Allocate("a.txt")
	b := r.Allocate("b.txt")
	assert.Equal(t, "1", a.Handle)
	assert.Equal(t, "2", b.Handle)
}

func TestFirstFileOpenedSetsHasBeenOpened(t *testing.T) {
	r := New()
	of := r.Allocate("a.txt")

	r.Route(protocol.Event{Type: protocol.TypeFileOpened, Handle: of.Handle, Content: "v1"})

	got, _ := r.Get(of.Handle)
	assert.True(t, got.HasBeenOpened)
	assert.Equal(t, "v1", got.LastContent)

	events := drain(t, of)
	require.Len(t, events, 1)
	assert.Equal(t, protocol.TypeFileOpened, events[0].Type)
}

func TestReconnectReopenWithUnchangedContentIsSuppressed(t *testing.T) {
	r := New()
	of := r.Allocate("a.txt")
	r.Route(protocol.Event{Type: protocol.TypeFileOpened, Handle: of.Handle, Content: "v1"})

	r.Route(protocol.Event{Type: protocol.TypeFileOpened, Handle: of.Handle, Content: "v1"})

	events := drain(t, of)
	require.Len(t, events, 1, "the reconnect reopen with unchanged content must not surface")
	assert.Equal(t, protocol.TypeFileOpened, events[0].Type)
}

func TestReconnectReopenWithChangedContentBecomesUpdate(t *testing.T) {
	r := New()
	of := r.Allocate("a.txt")
	r.Route(protocol.Event{Type: protocol.TypeFileOpened, Handle: of.Handle, Content: "v1"})

	r.Route(protocol.Event{Type: protocol.TypeFileOpened, Handle: of.Handle, Content: "v2"})

	events := drain(t, of)
	require.Len(t, events, 2)
	assert.Equal(t, protocol.TypeFileUpdated, events[1].Type)
	assert.Equal(t, "v2", events[1].Content)
}

func TestUnchangedFileUpdatedIsSuppressedGenerally(t *testing.T) {
	r := New()
	of := r.Allocate("a.txt")
	r.Route(protocol.Event{Type: protocol.TypeFileOpened, Handle: of.Handle, Content: "v1"})

	r.Route(protocol.Event{Type: protocol.TypeFileUpdated, Handle: of.Handle, Content: "v1"})

	events := drain(t, of)
	require.Len(t, events, 1, "a plain file_updated repeating lastContent is dropped, not just reconnect reopens")
}

func TestEventForUnknownHandleIsDropped(t *testing.T) {
	r := New()
	r.Route(protocol.Event{Type: protocol.TypeFileUpdated, Handle: "nonexistent", Content: "x"})
	// No panic, nothing to assert beyond survival; All() stays empty.
	assert.Empty(t, r.All())
}

func TestForgetRemovesHandle(t *testing.T) {
	r := New()
	of := r.Allocate("a.txt")
	r.Forget(of.Handle)
	_, ok := r.Get(of.Handle)
	assert.False(t, ok)
}
