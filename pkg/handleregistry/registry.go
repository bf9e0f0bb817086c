// Package handleregistry allocates per-instance handles, tracks each open
// file's last-seen content, and applies the reconnect-time event
// normalization rules before handing events to the file's stream.
package handleregistry

import (
	"strconv"
	"sync"

	"github.com/owtaylor/organized/pkg/filestream"
	"github.com/owtaylor/organized/pkg/protocol"
)

// OpenFile is the registry's record for one allocated handle. lastContent is
// the most recent content the server has reported for this handle via any
// event; hasBeenOpened flips true on the first delivered file_opened and
// controls reconnect-time rewriting.
type OpenFile struct {
	Handle        string
	Path          string
	LastContent   string
	HasBeenOpened bool
	Sink          *filestream.Stream
}

// Registry maps handle -> *OpenFile. Entries are mutated only by their
// owning Client; the mutex here guards against the registry being read from
// the diagnostics server concurrently.
type Registry struct {
	mu      sync.RWMutex
	next    uint64
	entries map[string]*OpenFile
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]*OpenFile)}
}

// Allocate assigns a fresh monotonically increasing handle for path and
// creates its OpenFile record with an empty FileStream.
func (r *Registry) Allocate(path string) *OpenFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	of := &OpenFile{
		Handle: strconv.FormatUint(r.next, 10),
		Path:   path,
		Sink:   filestream.New(),
	}
	r.entries[of.Handle] = of
	return of
}

// Get returns the OpenFile for handle, if any.
func (r *Registry) Get(handle string) (*OpenFile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	of, ok := r.entries[handle]
	return of, ok
}

// Forget removes handle from the registry. It does not close the file's
// stream — the caller (fsync.File.Close) does that itself so the stream
// observes closure at the right moment relative to its own best-effort
// close_file command.
func (r *Registry) Forget(handle string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, handle)
}

// All returns a snapshot of every currently open handle, for re-
// establishment on reconnect and for diagnostics.
func (r *Registry) All() []*OpenFile {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*OpenFile, 0, len(r.entries))
	for _, of := range r.entries {
		out = append(out, of)
	}
	return out
}

// Route applies event normalization and delivers the result to the
// handle's stream. Events for unknown handles are silently dropped. Route
// handles file_opened, file_updated, and file_written; file_closed carries
// no content and is a pure CommandQueue-dequeue concern, so callers must not
// pass it here.
func (r *Registry) Route(event protocol.Event) {
	r.mu.Lock()
	of, ok := r.entries[event.Handle]
	if !ok {
		r.mu.Unlock()
		return
	}

	eventType := event.Type
	if eventType == protocol.TypeFileOpened && of.HasBeenOpened {
		eventType = protocol.TypeFileUpdated
	}

	if eventType == protocol.TypeFileUpdated && event.Content == of.LastContent {
		r.mu.Unlock()
		return
	}

	of.LastContent = event.Content
	if event.Type == protocol.TypeFileOpened {
		of.HasBeenOpened = true
	}
	sink := of.Sink
	r.mu.Unlock()

	sink.Enqueue(protocol.Event{
		Type:    eventType,
		Handle:  event.Handle,
		Content: event.Content,
	})
}
