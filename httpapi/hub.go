package httpapi

import (
	"context"
	"sync"
	"time"

	"pkt.systems/tabstrip/internal/logx"
	"pkt.systems/tabstrip/schema"
)

// StreamEvent is sent to SSE clients.
type StreamEvent struct {
	Seq       uint64             `json:"seq"`
	Type      string             `json:"type"`
	WindowID  schema.WindowID    `json:"window_id"`
	Version   uint64             `json:"version,omitempty"`
	View      *schema.WindowView `json:"view,omitempty"`
	Phase     string             `json:"phase,omitempty"`
	Outcome   string             `json:"outcome,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// closedWindowMemory bounds how many closed window ids the hub remembers to
// discard late events for.
const closedWindowMemory = 1024

// Hub broadcasts events per window.
type Hub struct {
	mu             sync.Mutex
	windows        map[schema.WindowID]*windowHub
	closed         map[schema.WindowID]struct{}
	closedOrder    []schema.WindowID
	historySize    int
	flipDurationMs int
}

// NewHub constructs a hub with the given history size.
func NewHub(historySize, flipDurationMs int) *Hub {
	if historySize <= 0 {
		historySize = 256
	}
	return &Hub{
		windows:        make(map[schema.WindowID]*windowHub),
		closed:         make(map[schema.WindowID]struct{}),
		historySize:    historySize,
		flipDurationMs: flipDurationMs,
	}
}

// OnState implements core.EventSink.
func (h *Hub) OnState(event schema.StateEvent) {
	log := logx.WithWindow(context.Background(), event.WindowID)
	log.Trace("hub state event", "version", event.Version, "tabs", len(event.State.Tabs), "active", event.State.ActiveTabID)
	view := schema.BuildWindowView(event.State, event.State.Tabs, schema.DragState{}, h.zone(event.WindowID))
	h.publish(event.WindowID, StreamEvent{
		Type:      "state",
		WindowID:  event.WindowID,
		Version:   event.Version,
		View:      &view,
		Timestamp: time.Now(),
	})
}

// OnWindowClosed implements core.EventSink. The window's history is dropped
// after the closed event went out, and later events for it are discarded.
func (h *Hub) OnWindowClosed(windowID schema.WindowID) {
	logx.WithWindow(context.Background(), windowID).Debug("hub window closed")
	h.publish(windowID, StreamEvent{
		Type:      "closed",
		WindowID:  windowID,
		Timestamp: time.Now(),
	})
	h.mu.Lock()
	delete(h.windows, windowID)
	h.rememberClosedLocked(windowID)
	h.mu.Unlock()
}

// OnPreview publishes a drag preview. Preview events are not kept in history.
func (h *Hub) OnPreview(view schema.WindowView, phase, outcome string) {
	h.send(view.WindowID, StreamEvent{
		Type:      "preview",
		WindowID:  view.WindowID,
		View:      &view,
		Phase:     phase,
		Outcome:   outcome,
		Timestamp: time.Now(),
	})
}

// Subscribe registers a subscriber for a window. The channel of a closed
// window is returned already closed.
func (h *Hub) Subscribe(windowID schema.WindowID) (<-chan StreamEvent, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isClosedLocked(windowID) {
		ch := make(chan StreamEvent)
		close(ch)
		return ch, func() {}
	}
	wh := h.getOrCreateWindowHubLocked(windowID)
	ch := make(chan StreamEvent, 256)
	wh.subs[ch] = struct{}{}
	log := logx.WithWindow(context.Background(), windowID)
	log.Debug("hub subscribe", "subs", len(wh.subs), "history", len(wh.history))
	var once sync.Once
	unsub := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(wh.subs, ch)
			close(ch)
			remaining := len(wh.subs)
			h.mu.Unlock()
			log.Debug("hub unsubscribe", "subs", remaining)
		})
	}
	return ch, unsub
}

// Replay returns events after the provided seq.
func (h *Hub) Replay(windowID schema.WindowID, after uint64) []StreamEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	wh := h.windows[windowID]
	if wh == nil {
		return nil
	}
	events := make([]StreamEvent, 0, len(wh.history))
	for _, event := range wh.history {
		if event.Seq > after {
			events = append(events, event)
		}
	}
	logx.WithWindow(context.Background(), windowID).Debug("hub replay", "after", after, "count", len(events))
	return events
}

func (h *Hub) zone(windowID schema.WindowID) schema.DndZoneConfig {
	return schema.DefaultDndZoneConfig(windowID, h.flipDurationMs)
}

func (h *Hub) publish(windowID schema.WindowID, event StreamEvent) {
	h.mu.Lock()
	if h.isClosedLocked(windowID) {
		h.mu.Unlock()
		logx.WithWindow(context.Background(), windowID).Debug("hub event for closed window discarded", "type", event.Type)
		return
	}
	wh := h.getOrCreateWindowHubLocked(windowID)
	wh.seq++
	event.Seq = wh.seq
	wh.history = append(wh.history, event)
	if len(wh.history) > h.historySize {
		wh.history = wh.history[len(wh.history)-h.historySize:]
	}
	dropped := h.deliverLocked(wh, event)
	h.mu.Unlock()
	if dropped > 0 {
		logx.WithWindow(context.Background(), windowID).Warn("hub event dropped", "type", event.Type, "dropped", dropped)
	}
}

func (h *Hub) send(windowID schema.WindowID, event StreamEvent) {
	h.mu.Lock()
	wh := h.windows[windowID]
	dropped := 0
	if wh != nil {
		dropped = h.deliverLocked(wh, event)
	}
	h.mu.Unlock()
	if dropped > 0 {
		logx.WithWindow(context.Background(), windowID).Trace("hub preview dropped", "dropped", dropped)
	}
}

// deliverLocked never blocks; unsubscribe closes channels under the same lock.
func (h *Hub) deliverLocked(wh *windowHub, event StreamEvent) int {
	dropped := 0
	for sub := range wh.subs {
		select {
		case sub <- event:
		default:
			dropped++
		}
	}
	return dropped
}

func (h *Hub) getOrCreateWindowHubLocked(windowID schema.WindowID) *windowHub {
	wh := h.windows[windowID]
	if wh == nil {
		wh = &windowHub{
			subs: make(map[chan StreamEvent]struct{}),
		}
		h.windows[windowID] = wh
	}
	return wh
}

func (h *Hub) isClosedLocked(windowID schema.WindowID) bool {
	_, ok := h.closed[windowID]
	return ok
}

func (h *Hub) rememberClosedLocked(windowID schema.WindowID) {
	if h.isClosedLocked(windowID) {
		return
	}
	h.closed[windowID] = struct{}{}
	h.closedOrder = append(h.closedOrder, windowID)
	if len(h.closedOrder) > closedWindowMemory {
		delete(h.closed, h.closedOrder[0])
		h.closedOrder = h.closedOrder[1:]
	}
}

type windowHub struct {
	seq     uint64
	history []StreamEvent
	subs    map[chan StreamEvent]struct{}
}
