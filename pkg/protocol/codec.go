// Package protocol encodes outbound commands and decodes inbound events for
// the file-sync wire protocol: tagged-record JSON text frames, discriminated
// by a "type" field.
package protocol

import (
	"encoding/json"
	"fmt"
)

// Command type discriminants (client -> server).
const (
	TypeOpenFile  = "open_file"
	TypeCloseFile = "close_file"
	TypeWriteFile = "write_file"
	TypeCommit    = "commit"
)

// Event type discriminants (server -> client).
const (
	TypeFileOpened = "file_opened"
	TypeFileClosed = "file_closed"
	TypeFileUpdated = "file_updated"
	TypeFileWritten = "file_written"
	TypeCommitted   = "committed"
	TypeError       = "error"
)

// OpenCommand tells the server to open (or reopen) a path under a
// client-assigned handle. Path may carry the "@" snapshot sigil.
type OpenCommand struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Handle string `json:"handle"`
}

// CloseCommand is fire-and-forget; the server never needs to answer it for
// the client to proceed, but it still produces a terminal file_closed/error.
type CloseCommand struct {
	Type   string `json:"type"`
	Handle string `json:"handle"`
}

// WriteCommand submits the client's last observed content alongside the
// desired new content; the server may return merged content.
type WriteCommand struct {
	Type        string `json:"type"`
	Handle      string `json:"handle"`
	LastContent string `json:"last_content"`
	NewContent  string `json:"new_content"`
}

// CommitCommand is repository-level; it carries no handle.
type CommitCommand struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EncodeOpen encodes an open_file command.
func EncodeOpen(path, handle string) ([]byte, error) {
	return json.Marshal(OpenCommand{Type: TypeOpenFile, Path: path, Handle: handle})
}

// EncodeClose encodes a close_file command.
func EncodeClose(handle string) ([]byte, error) {
	return json.Marshal(CloseCommand{Type: TypeCloseFile, Handle: handle})
}

// EncodeWrite encodes a write_file command.
func EncodeWrite(handle, lastContent, newContent string) ([]byte, error) {
	return json.Marshal(WriteCommand{
		Type:        TypeWriteFile,
		Handle:      handle,
		LastContent: lastContent,
		NewContent:  newContent,
	})
}

// EncodeCommit encodes a commit command.
func EncodeCommit(message string) ([]byte, error) {
	return json.Marshal(CommitCommand{Type: TypeCommit, Message: message})
}

// Event is the closed sum of all inbound server events. Only the fields
// relevant to Event.Type are meaningful; others are zero-valued.
type Event struct {
	Type    string
	Handle  string
	Content string
	Message string
	Path    string
}

// terminalTypes is the set of event types that consume one entry from the
// command FIFO. file_updated is deliberately absent: it is unsolicited and
// never dequeues a pending command.
var terminalTypes = map[string]bool{
	TypeFileOpened: true,
	TypeFileClosed: true,
	TypeFileWritten: true,
	TypeCommitted:   true,
	TypeError:       true,
}

// IsTerminal reports whether an event type consumes a pending command.
func IsTerminal(eventType string) bool {
	return terminalTypes[eventType]
}

// wireEvent mirrors every possible inbound field so a single Unmarshal call
// can discriminate on "type" without a two-pass decode.
type wireEvent struct {
	Type    string `json:"type"`
	Handle  string `json:"handle"`
	Content string `json:"content"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

// DecodeError reports a frame that could not be decoded into a known event
// shape: invalid JSON, a missing "type" discriminant, or an unrecognized one.
type DecodeError struct {
	Reason string
	Frame  []byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("protocol: decode error: %s", e.Reason)
}

// Decode parses one inbound frame into an Event. It validates that "type" is
// present and is one of the known event kinds; everything else is passed
// through uninterpreted, matching the server's authority over content.
func Decode(frame []byte) (Event, error) {
	var w wireEvent
	if err := json.Unmarshal(frame, &w); err != nil {
		return Event{}, &DecodeError{Reason: err.Error(), Frame: frame}
	}
	if w.Type == "" {
		return Event{}, &DecodeError{Reason: "missing \"type\" field", Frame: frame}
	}
	switch w.Type {
	case TypeFileOpened, TypeFileClosed, TypeFileUpdated, TypeFileWritten, TypeCommitted, TypeError:
	default:
		return Event{}, &DecodeError{Reason: fmt.Sprintf("unrecognized type %q", w.Type), Frame: frame}
	}
	return Event{
		Type:    w.Type,
		Handle:  w.Handle,
		Content: w.Content,
		Message: w.Message,
		Path:    w.Path,
	}, nil
}
