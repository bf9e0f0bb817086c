// Package filestream implements the per-handle lazy, cancellable event
// sequence: an unbounded buffer plus a single waiter slot, following the
// design notes' "mpsc queue owned by the stream, with a close-flag read
// under the same lock."
package filestream

import (
	"iter"
	"sync"

	"github.com/owtaylor/organized/pkg/fserr"
	"github.com/owtaylor/organized/pkg/protocol"
)

// Stream is a per-handle event sequence. The zero value is not usable; use
// New. A Stream permits exactly one call to Events() being ranged over; a
// second attempt yields a single UsageError and nothing else.
type Stream struct {
	mu        sync.Mutex
	buffer    []protocol.Event
	closed    bool
	closeErr  error
	waiter    chan struct{}
	iterating bool
}

// New returns an empty, open Stream.
func New() *Stream {
	return &Stream{}
}

func (s *Stream) lock()   { s.mu.Lock() }
func (s *Stream) unlock() { s.mu.Unlock() }

// BufferedLen reports how many events are currently queued and not yet
// yielded to a consumer. Used by the diagnostics server; never itself
// consumes from the buffer.
func (s *Stream) BufferedLen() int {
	s.lock()
	defer s.unlock()
	return len(s.buffer)
}

// Enqueue appends ev to the buffer, waking any suspended consumer. A no-op
// once the stream is closed: File.Close closes the stream before the
// registry forgets its handle, so events routed in between are discarded.
func (s *Stream) Enqueue(ev protocol.Event) {
	s.lock()
	defer s.unlock()
	if s.closed {
		return
	}
	s.buffer = append(s.buffer, ev)
	s.wakeLocked()
}

// Close marks the stream closed and wakes any suspended consumer, which then
// observes the end of iteration once the buffer has drained. Idempotent.
func (s *Stream) Close() {
	s.closeLocked(nil)
}

// CloseWithError closes the stream such that, once the buffer drains, the
// final iteration step yields err instead of ending silently. Used when a
// file's initial open fails before its first file_opened arrives: the
// open_file send fails, the server answers with an error, or the connection
// is lost while the open is still pending.
func (s *Stream) CloseWithError(err error) {
	s.closeLocked(err)
}

func (s *Stream) closeLocked(err error) {
	s.lock()
	defer s.unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.closeErr = err
	s.wakeLocked()
}

// wakeLocked releases any suspended consumer. Caller must hold the lock.
func (s *Stream) wakeLocked() {
	if s.waiter != nil {
		close(s.waiter)
		s.waiter = nil
	}
}

// Events returns the lazy sequence. Ranging over it suspends while the
// buffer is empty and the stream is open, and ends (after yielding any
// closeErr) once the stream is closed and the buffer has drained.
func (s *Stream) Events() iter.Seq2[protocol.Event, error] {
	return func(yield func(protocol.Event, error) bool) {
		s.lock()
		if s.iterating {
			s.unlock()
			yield(protocol.Event{}, &fserr.UsageError{Op: "FileStream.Events", Reason: "already iterating"})
			return
		}
		s.iterating = true
		s.unlock()

		for {
			s.lock()
			for len(s.buffer) == 0 && !s.closed {
				w := make(chan struct{})
				s.waiter = w
				s.unlock()
				<-w
				s.lock()
			}
			if len(s.buffer) > 0 {
				ev := s.buffer[0]
				s.buffer = s.buffer[1:]
				s.unlock()
				if !yield(ev, nil) {
					return
				}
				continue
			}
			err := s.closeErr
			s.unlock()
			if err != nil {
				yield(protocol.Event{}, err)
			}
			return
		}
	}
}
