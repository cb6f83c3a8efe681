package tabstrip

import (
	"pkt.systems/tabstrip/core"
	"pkt.systems/tabstrip/schema"
)

// eventFanout forwards registry events to every front-end sink.
type eventFanout struct {
	sinks []core.EventSink
}

func (f eventFanout) OnState(event schema.StateEvent) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnState(event)
	}
}

func (f eventFanout) OnWindowClosed(windowID schema.WindowID) {
	for _, sink := range f.sinks {
		if sink == nil {
			continue
		}
		sink.OnWindowClosed(windowID)
	}
}
