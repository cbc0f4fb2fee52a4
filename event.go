package tonika

import (
	"fmt"
	"time"
)

// Handler is invoked synchronously for every event of a subscribed type.
type Handler func(Event)

// Metadata records the provenance of an event: when it was emitted, by whom,
// and which version of the emitter. It is stamped by the bus at emit time,
// never by the caller, so every entry in the history log can be trusted.
type Metadata struct {
	// Timestamp is milliseconds since the Unix epoch.
	Timestamp int64  `json:"timestamp"`
	Source    string `json:"source"`
	Version   string `json:"version"`
}

func newMetadata(source, version string) Metadata {
	return Metadata{
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
		Version:   version,
	}
}

// Event is the envelope for all bus communication. Events are immutable once
// constructed, but the payload is shared by reference: the same instance is
// delivered to every handler, every waiter, and the history log. Handlers that
// mutate a mutable payload are visible to everyone else observing the event.
type Event struct {
	// Type is an opaque hierarchical token, e.g. "midi:note-on". The bus
	// imposes no structure beyond exact-match dispatch.
	Type    string   `json:"type"`
	Payload any      `json:"payload"`
	Meta    Metadata `json:"meta"`
}

func (e Event) String() string {
	return fmt.Sprintf("Event(type=%q, source=%q, timestamp=%d)", e.Type, e.Meta.Source, e.Meta.Timestamp)
}

// ModuleStatus is the closed set of lifecycle states a module moves through.
// Transitions are strictly forward; Error and Destroyed are terminal.
type ModuleStatus int

const (
	StatusUninitialized ModuleStatus = iota
	StatusInitializing
	StatusReady
	StatusError
	StatusDestroyed
)

func (s ModuleStatus) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	case StatusDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("ModuleStatus(%d)", int(s))
	}
}

// MarshalJSON encodes the status as its lowercase string form, matching the
// wire shape of the module:* lifecycle payloads.
func (s ModuleStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
