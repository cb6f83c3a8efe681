package core

import "pkt.systems/tabstrip/schema"

// EventSink receives window state changes from the registry.
type EventSink interface {
	OnState(event schema.StateEvent)
	OnWindowClosed(windowID schema.WindowID)
}
