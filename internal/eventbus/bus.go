package eventbus

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/schema"
)

// EventType identifies the event payload.
type EventType string

const (
	// EventState carries a window state snapshot.
	EventState EventType = "state"
	// EventClosed reports that the window was closed.
	EventClosed EventType = "closed"
)

// Event represents a window event delivered to terminal sessions.
type Event struct {
	Type     EventType
	WindowID schema.WindowID
	State    schema.StateEvent
}

// Bus fanouts events to per-window subscribers.
type Bus struct {
	mu    sync.Mutex
	subs  map[schema.WindowID]map[chan Event]struct{}
	log   pslog.Logger
	depth int
}

// New constructs a Bus.
func New(logger pslog.Logger) *Bus {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Bus{
		subs:  make(map[schema.WindowID]map[chan Event]struct{}),
		log:   logger,
		depth: 64,
	}
}

// Subscribe registers a subscriber for the window and returns a channel + cancel.
func (b *Bus) Subscribe(windowID schema.WindowID) (<-chan Event, func()) {
	if b == nil {
		return nil, func() {}
	}
	ch := make(chan Event, b.depth)
	b.mu.Lock()
	windowSubs := b.subs[windowID]
	if windowSubs == nil {
		windowSubs = make(map[chan Event]struct{})
		b.subs[windowID] = windowSubs
	}
	windowSubs[ch] = struct{}{}
	count := len(windowSubs)
	b.mu.Unlock()
	b.log.With("window", windowID).Debug("eventbus subscribe", "subs", count)
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			if subs := b.subs[windowID]; subs != nil {
				delete(subs, ch)
				if len(subs) == 0 {
					delete(b.subs, windowID)
				}
			}
			close(ch)
			b.mu.Unlock()
			b.log.With("window", windowID).Debug("eventbus unsubscribe")
		})
	}
}

// OnState publishes a state event.
func (b *Bus) OnState(event schema.StateEvent) {
	b.publish(event.WindowID, Event{Type: EventState, WindowID: event.WindowID, State: event})
}

// OnWindowClosed publishes a close event.
func (b *Bus) OnWindowClosed(windowID schema.WindowID) {
	b.publish(windowID, Event{Type: EventClosed, WindowID: windowID})
}

// publish never blocks; a subscriber whose buffer is full misses the event.
// Sends happen under the lock so cancel cannot close a channel mid-send.
func (b *Bus) publish(windowID schema.WindowID, event Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	dropped := 0
	for sub := range b.subs[windowID] {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	b.mu.Unlock()
	if dropped > 0 {
		b.log.With("window", windowID).Trace("eventbus dropped", "count", dropped)
	}
}
