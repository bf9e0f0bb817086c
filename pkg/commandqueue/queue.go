// Package commandqueue enforces the strict FIFO correlation between
// unanswered commands and the terminal server events that answer them, over
// a single channel carrying no sequence numbers.
package commandqueue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/owtaylor/organized/pkg/fserr"
	"github.com/owtaylor/organized/pkg/protocol"
)

// Sender writes one encoded frame through the owning channel.
type Sender interface {
	Send(ctx context.Context, frame []byte) error
}

// pendingCommand is a single outstanding command awaiting its terminal
// event. resultCh is buffered by one so Resolve/Reject never blocks even if
// nobody is listening yet.
type pendingCommand struct {
	id           string
	expectedType string
	resultCh     chan result
}

type result struct {
	event protocol.Event
	err   error
}

// Queue is a strict FIFO of pendingCommand records. Submit appends one and
// writes its frame; each inbound terminal event dequeues exactly the head.
// Unsolicited events never touch the queue: Dispatch ignores them and
// returns false.
type Queue struct {
	sender Sender

	mu      sync.Mutex
	pending []*pendingCommand
}

// New returns a Queue that writes frames through sender.
func New(sender Sender) *Queue {
	return &Queue{sender: sender}
}

// Submit appends a pending command, sends frame, and returns a function the
// caller invokes to block for the correlated terminal event. expectedType is
// the terminal event type this command should normally receive (e.g.
// file_opened for an open_file command); a terminal event of any other
// non-error type at the head position is a protocol violation, not a
// legitimate interleaving, since terminal events strictly preserve submit
// order: they arrive in the same order the corresponding commands were sent.
//
// If Send fails, the pending command is immediately removed and the error
// returned without waiting — a failed write can never produce a terminal
// reply.
func (q *Queue) Submit(ctx context.Context, frame []byte, expectedType string) (func() (protocol.Event, error), error) {
	pc := &pendingCommand{id: uuid.NewString(), expectedType: expectedType, resultCh: make(chan result, 1)}

	q.mu.Lock()
	q.pending = append(q.pending, pc)
	q.mu.Unlock()

	if err := q.sender.Send(ctx, frame); err != nil {
		q.removePending(pc)
		return nil, err
	}

	wait := func() (protocol.Event, error) {
		select {
		case r := <-pc.resultCh:
			if r.err == nil && r.event.Type != pc.expectedType {
				return protocol.Event{}, &fserr.ProtocolError{
					Reason: "expected " + pc.expectedType + ", got " + r.event.Type,
				}
			}
			return r.event, r.err
		case <-ctx.Done():
			q.removePending(pc)
			return protocol.Event{}, ctx.Err()
		}
	}
	return wait, nil
}

func (q *Queue) removePending(pc *pendingCommand) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, p := range q.pending {
		if p == pc {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return
		}
	}
}

// Dispatch handles one inbound frame. It returns true if the frame was a
// terminal event the queue consumed (whether or not a pending command was
// actually waiting); false means the frame is an unsolicited file_updated
// and the caller (HandleRegistry) is solely responsible for routing it.
// Handle-directed terminal events (file_opened, file_written) also return
// true; callers route those themselves after Dispatch returns.
func (q *Queue) Dispatch(frame protocol.Event, decodeErr error) bool {
	if decodeErr != nil {
		q.dequeueAndDeliver(result{err: &fserr.ProtocolError{Reason: decodeErr.Error()}})
		return true
	}
	if !protocol.IsTerminal(frame.Type) {
		return false
	}
	if frame.Type == protocol.TypeError {
		q.dequeueAndDeliver(result{err: &fserr.RemoteError{Message: frame.Message, Path: frame.Path}})
		return true
	}
	q.dequeueAndDeliver(result{event: frame})
	return true
}

// dequeueAndDeliver pops the head pending command (if any) and delivers r to
// it. With an empty queue r is dropped: an error result (error event or
// decode failure with nothing pending) is logged first, while any other
// unsolicited terminal-shaped event is dropped without a log line.
func (q *Queue) dequeueAndDeliver(r result) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.mu.Unlock()
		if r.err != nil {
			slog.Warn("commandqueue: terminal event with empty queue", "error", r.err)
		}
		return
	}
	head := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()

	head.resultCh <- r
}

// DrainOnClose rejects every pending command with ErrConnectionClosed. Called
// once when the owning channel closes or errors.
func (q *Queue) DrainOnClose() {
	q.mu.Lock()
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, p := range pending {
		p.resultCh <- result{err: fserr.ErrConnectionClosed}
	}
}
