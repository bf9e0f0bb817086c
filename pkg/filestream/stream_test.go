package filestream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/owtaylor/organized/pkg/fserr"
	"github.com/owtaylor/organized/pkg/protocol"
)

func TestEnqueueThenIterateDeliversInOrder(t *testing.T) {
	s := New()
	s.Enqueue(protocol.Event{Type: protocol.TypeFileOpened, Content: "a"})
	s.Enqueue(protocol.Event{Type: protocol.TypeFileUpdated, Content: "b"})
	s.Close()

	var got []protocol.Event
	for ev, err := range s.Events() {
		require.NoError(t, err)
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Content)
	assert.Equal(t, "b", got[1].Content)
}

func TestIterationSuspendsUntilEnqueue(t *testing.T) {
	s := New()
	done := make(chan []protocol.Event, 1)
	go func() {
		var got []protocol.Event
		for ev, err := range s.Events() {
			if err != nil {
				break
			}
			got = append(got, ev)
			if len(got) == 1 {
				break
			}
		}
		done <- got
	}()

	time.Sleep(20 * time.Millisecond) // consumer should be suspended now
	s.Enqueue(protocol.Event{Type: protocol.TypeFileOpened, Content: "first"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consumer never woke on enqueue")
	}
}

func TestCloseEndsIterationAfterDrain(t *testing.T) {
	s := New()
	s.Enqueue(protocol.Event{Type: protocol.TypeFileOpened})
	s.Close()

	count := 0
	for range s.Events() {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestCloseWithErrorSurfacesOnDrain(t *testing.T) {
	s := New()
	s.CloseWithError(fserr.ErrConnectionClosed)

	var lastErr error
	for _, err := range s.Events() {
		lastErr = err
	}
	assert.ErrorIs(t, lastErr, fserr.ErrConnectionClosed)
}

func TestDoubleIterationFailsWithUsageError(t *testing.T) {
	s := New()
	s.Close()

	for range s.Events() {
	}

	var usageErr *fserr.UsageError
	found := false
	for _, err := range s.Events() {
		if err != nil {
			found = true
			require.ErrorAs(t, err, &usageErr)
		}
	}
	assert.True(t, found)
}

func TestCloseIsIdempotent(t *testing.T) {
	s := New()
	s.Close()
	s.Close() // must not panic or re-set closeErr
	for range s.Events() {
	}
}
