package events

import (
	"github.com/cbodonnell/tabletop/pkg/messages"
	"github.com/cbodonnell/tabletop/pkg/network"
)

// Event is anything the session loop consumes. The set is closed:
// network events come from the transport, the rest are generated internally.
type Event interface {
	isEvent()
}

// ConnectedEvent is emitted when a transport connection is accepted.
type ConnectedEvent struct {
	Conn network.Conn
}

// MessageEvent carries a decoded inbound message and the connection it arrived on.
type MessageEvent struct {
	Conn    network.Conn
	Message *messages.Message
}

// DisconnectedEvent is emitted once a connection's read side has ended.
type DisconnectedEvent struct {
	Conn network.Conn
}

// AutosaveEvent is emitted by the autosave timer. Done is closed once the save attempt finishes.
type AutosaveEvent struct {
	Done chan struct{}
}

// SaveEvent forces a save regardless of the dirty flag.
type SaveEvent struct {
	Done chan error
}

// ReloadEvent replaces the in-memory state with a fresh pull from the backing store.
type ReloadEvent struct {
	Done chan error
}

func (ConnectedEvent) isEvent()    {}
func (MessageEvent) isEvent()      {}
func (DisconnectedEvent) isEvent() {}
func (AutosaveEvent) isEvent()     {}
func (SaveEvent) isEvent()         {}
func (ReloadEvent) isEvent()       {}

// NewAutosaveEvent returns an AutosaveEvent with its Done channel allocated.
func NewAutosaveEvent() AutosaveEvent {
	return AutosaveEvent{Done: make(chan struct{})}
}

// NewSaveEvent returns a SaveEvent with a buffered Done channel.
func NewSaveEvent() SaveEvent {
	return SaveEvent{Done: make(chan error, 1)}
}

// NewReloadEvent returns a ReloadEvent with a buffered Done channel.
func NewReloadEvent() ReloadEvent {
	return ReloadEvent{Done: make(chan error, 1)}
}

// Name returns a short label for the event kind, used in logs and metrics.
func Name(e Event) string {
	switch e.(type) {
	case ConnectedEvent:
		return "connected"
	case MessageEvent:
		return "message"
	case DisconnectedEvent:
		return "disconnected"
	case AutosaveEvent:
		return "autosave"
	case SaveEvent:
		return "save"
	case ReloadEvent:
		return "reload"
	default:
		return "unknown"
	}
}
