package fsync

import (
	"context"
	"iter"
	"sync/atomic"

	"github.com/owtaylor/organized/pkg/fserr"
	"github.com/owtaylor/organized/pkg/handleregistry"
	"github.com/owtaylor/organized/pkg/protocol"
)

// FileEvent is the public projection of a server event delivered for one
// open file: its kind and, where relevant, the content the server reported.
type FileEvent struct {
	Type    string
	Content string
}

// Event type discriminants an embedding application switches on.
const (
	EventFileOpened  = protocol.TypeFileOpened
	EventFileUpdated = protocol.TypeFileUpdated
	EventFileWritten = protocol.TypeFileWritten
)

// File is a single client-side handle on one server-side path, returned by
// Client.OpenFile. It is not safe to share a File across goroutines other
// than to call Close from a different goroutine than the one ranging over
// GetEvents.
type File struct {
	client *Client
	of     *handleregistry.OpenFile

	closed   atomic.Bool
	openDone chan struct{}
	openErr  error
}

// OpenFile allocates a handle for path and submits the open_file command
// without blocking the caller; the returned File's GetEvents sequence yields
// the resulting file_opened once it arrives (or ends in error if the open
// itself fails).
func (c *Client) OpenFile(path string) *File {
	of := c.registry.Allocate(path)
	f := &File{client: c, of: of, openDone: make(chan struct{})}
	go f.startOpen()
	return f
}

func (f *File) startOpen() {
	defer close(f.openDone)

	frame, err := protocol.EncodeOpen(f.of.Path, f.of.Handle)
	if err != nil {
		f.openErr = err
		f.client.registry.Forget(f.of.Handle)
		f.of.Sink.CloseWithError(err)
		return
	}
	wait, err := f.client.queue.Submit(context.Background(), frame, protocol.TypeFileOpened)
	if err != nil {
		f.openErr = err
		f.client.registry.Forget(f.of.Handle)
		f.of.Sink.CloseWithError(err)
		return
	}
	if _, err := wait(); err != nil {
		f.openErr = err
		f.client.registry.Forget(f.of.Handle)
		f.of.Sink.CloseWithError(err)
	}
	// On success, the file_opened event itself was already delivered to the
	// sink by the route loop's call to handleregistry.Route.
}

// Path returns the path this handle was opened for.
func (f *File) Path() string {
	return f.of.Path
}

// GetEvents returns the lazy, cancellable sequence of events for this file.
// Exactly one call may be ranged over; a second call's sequence yields a
// single UsageError, matching FileStream's single-iteration guarantee.
func (f *File) GetEvents() iter.Seq2[FileEvent, error] {
	return func(yield func(FileEvent, error) bool) {
		for ev, err := range f.of.Sink.Events() {
			if err != nil {
				yield(FileEvent{}, err)
				return
			}
			if !yield(FileEvent{Type: ev.Type, Content: ev.Content}, nil) {
				return
			}
		}
	}
}

// WriteFile submits the client's last observed content alongside the
// desired new content and blocks for the server's resulting content (which
// may differ from newContent if the server merged concurrent changes).
func (f *File) WriteFile(ctx context.Context, lastContent, newContent string) (string, error) {
	if f.closed.Load() {
		return "", &fserr.UsageError{Op: "File.WriteFile", Reason: "file is closed"}
	}
	frame, err := protocol.EncodeWrite(f.of.Handle, lastContent, newContent)
	if err != nil {
		return "", err
	}
	wait, err := f.client.queue.Submit(ctx, frame, protocol.TypeFileWritten)
	if err != nil {
		return "", err
	}
	ev, err := wait()
	if err != nil {
		return "", err
	}
	return ev.Content, nil
}

// Close ends the file's event sequence immediately and sends close_file in
// the background once the open has resolved, ignoring any error it reports.
// The handle is forgotten from the registry regardless of outcome. Close is
// idempotent and never blocks the caller.
func (f *File) Close() {
	if !f.closed.CompareAndSwap(false, true) {
		return
	}
	f.of.Sink.Close()

	go func() {
		<-f.openDone
		defer f.client.registry.Forget(f.of.Handle)
		if f.openErr != nil {
			// The open itself never succeeded; there is no server-side
			// handle to tell to close.
			return
		}
		frame, err := protocol.EncodeClose(f.of.Handle)
		if err != nil {
			return
		}
		wait, err := f.client.queue.Submit(context.Background(), frame, protocol.TypeFileClosed)
		if err != nil {
			return
		}
		_, _ = wait()
	}()
}
