package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/schema"
)

// Store owns the ordered tab list and the active tab of one window.
//
// Rejected operations (unknown id, out of range index, order mismatch) log a
// warning, leave the state untouched and send no notification. The sentinel
// error is returned as well so transports can map it; callers that only care
// about the no-op behavior may ignore it.
//
// Subscribers are called synchronously and outside the store lock. A mutation
// made from inside a subscriber is applied immediately and its notification is
// delivered after the current round, so every subscriber sees snapshots in
// version order.
type Store struct {
	windowID schema.WindowID
	newID    func() schema.TabID
	log      pslog.Logger

	mu         sync.Mutex
	tabs       []schema.Tab
	active     schema.TabID
	version    uint64
	subs       []*subscription
	queue      []notification
	delivering bool
}

type subscription struct {
	fn     func(version uint64, state schema.State)
	since  uint64
	active atomic.Bool
}

type notification struct {
	version uint64
	state   schema.State
	target  *subscription
}

// NewStore constructs an empty store for one window.
func NewStore(deps StoreDeps) *Store {
	windowID := deps.WindowID
	if windowID == "" {
		windowID = newWindowID()
	}
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	newID := deps.NewID
	if newID == nil {
		newID = newTabID
	}
	return &Store{
		windowID: windowID,
		newID:    newID,
		log:      logger.With("window", windowID),
	}
}

// WindowID returns the window this store belongs to. It never changes.
func (s *Store) WindowID() schema.WindowID {
	return s.windowID
}

// AddTab appends a new tab and makes it active. It never fails.
func (s *Store) AddTab(tabType schema.TabType, title string) schema.TabID {
	s.mu.Lock()
	id := s.newID()
	if id == "" || s.indexLocked(id) >= 0 {
		id = newTabID()
	}
	s.tabs = append(s.tabs, schema.Tab{ID: id, Type: tabType, Title: title})
	s.active = id
	count := len(s.tabs)
	s.commitLocked()
	s.mu.Unlock()
	s.log.Debug("store tab added", "tab", id, "type", tabType, "count", count)
	s.flush()
	return id
}

// RemoveTab removes a tab. When the removed tab was active, the tab that
// shifts into its position becomes active, or the new last tab when it was
// the last one.
func (s *Store) RemoveTab(id schema.TabID) error {
	return s.remove(id, "remove")
}

// CloseTab closes a tab on behalf of the user. It behaves like RemoveTab.
func (s *Store) CloseTab(id schema.TabID) error {
	s.log.Debug("store tab close", "tab", id)
	return s.remove(id, "close")
}

func (s *Store) remove(id schema.TabID, op string) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		err := fmt.Errorf("%w: %s", schema.ErrTabNotFound, id)
		s.log.Warn("store tab "+op+" rejected", "tab", id, "err", err)
		return err
	}
	s.tabs = append(s.tabs[:idx:idx], s.tabs[idx+1:]...)
	if s.active == id {
		switch {
		case len(s.tabs) == 0:
			s.active = ""
		case idx < len(s.tabs):
			s.active = s.tabs[idx].ID
		default:
			s.active = s.tabs[len(s.tabs)-1].ID
		}
	}
	active := s.active
	count := len(s.tabs)
	s.commitLocked()
	s.mu.Unlock()
	s.log.Debug("store tab removed", "tab", id, "active", active, "count", count)
	s.flush()
	return nil
}

// MoveTab moves a tab to newIndex, shifting the others. newIndex must be in
// [0, len-1]. The active tab is unchanged.
func (s *Store) MoveTab(id schema.TabID, newIndex int) error {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		err := fmt.Errorf("%w: %s", schema.ErrTabNotFound, id)
		s.log.Warn("store tab move rejected", "tab", id, "index", newIndex, "err", err)
		return err
	}
	if newIndex < 0 || newIndex >= len(s.tabs) {
		count := len(s.tabs)
		s.mu.Unlock()
		err := fmt.Errorf("%w: %d not in [0, %d]", schema.ErrIndexOutOfRange, newIndex, count-1)
		s.log.Warn("store tab move rejected", "tab", id, "index", newIndex, "err", err)
		return err
	}
	tab := s.tabs[idx]
	tabs := make([]schema.Tab, 0, len(s.tabs))
	tabs = append(tabs, s.tabs[:idx]...)
	tabs = append(tabs, s.tabs[idx+1:]...)
	tabs = append(tabs[:newIndex], append([]schema.Tab{tab}, tabs[newIndex:]...)...)
	s.tabs = tabs
	s.commitLocked()
	s.mu.Unlock()
	s.log.Debug("store tab moved", "tab", id, "from", idx, "to", newIndex)
	s.flush()
	return nil
}

// SetActiveTab selects the active tab.
func (s *Store) SetActiveTab(id schema.TabID) error {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		err := fmt.Errorf("%w: %s", schema.ErrTabNotFound, id)
		s.log.Warn("store tab activate rejected", "tab", id, "err", err)
		return err
	}
	s.active = id
	s.commitLocked()
	s.mu.Unlock()
	s.log.Debug("store tab activated", "tab", id)
	s.flush()
	return nil
}

// SetTabOrder replaces the tab order. order must hold exactly the current tab
// ids; the records in order are adopted as given and the active tab is kept.
func (s *Store) SetTabOrder(order []schema.Tab) error {
	s.mu.Lock()
	if err := s.checkPermutationLocked(order); err != nil {
		s.mu.Unlock()
		s.log.Warn("store tab order rejected", "count", len(order), "err", err)
		return err
	}
	tabs := make([]schema.Tab, len(order))
	copy(tabs, order)
	s.tabs = tabs
	s.commitLocked()
	s.mu.Unlock()
	s.log.Debug("store tab order set", "count", len(tabs))
	s.flush()
	return nil
}

func (s *Store) checkPermutationLocked(order []schema.Tab) error {
	if len(order) != len(s.tabs) {
		return fmt.Errorf("%w: %d tabs, want %d", schema.ErrOrderMismatch, len(order), len(s.tabs))
	}
	current := make(map[schema.TabID]struct{}, len(s.tabs))
	for _, tab := range s.tabs {
		current[tab.ID] = struct{}{}
	}
	seen := make(map[schema.TabID]struct{}, len(order))
	for _, tab := range order {
		if _, ok := current[tab.ID]; !ok {
			return fmt.Errorf("%w: unknown tab %s", schema.ErrOrderMismatch, tab.ID)
		}
		if _, dup := seen[tab.ID]; dup {
			return fmt.Errorf("%w: duplicate tab %s", schema.ErrOrderMismatch, tab.ID)
		}
		seen[tab.ID] = struct{}{}
	}
	return nil
}

// Reset clears all tabs. The window id is kept.
func (s *Store) Reset() {
	s.mu.Lock()
	count := len(s.tabs)
	s.tabs = nil
	s.active = ""
	s.commitLocked()
	s.mu.Unlock()
	s.log.Debug("store reset", "removed", count)
	s.flush()
}

// Tabs returns a copy of the tab order.
func (s *Store) Tabs() []schema.Tab {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Tab, len(s.tabs))
	copy(out, s.tabs)
	return out
}

// TabByID looks up a tab.
func (s *Store) TabByID(id schema.TabID) (schema.Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.tabs[idx], true
	}
	return schema.Tab{}, false
}

// ActiveTab returns the active tab, if any.
func (s *Store) ActiveTab() (schema.Tab, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(s.active); s.active != "" && idx >= 0 {
		return s.tabs[idx], true
	}
	return schema.Tab{}, false
}

// State returns a snapshot of the whole store.
func (s *Store) State() schema.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Version returns the number of successful mutations so far.
func (s *Store) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Subscribe registers fn. It is called with the current state right away and
// again after every successful mutation. The returned function unsubscribes;
// calling it more than once is harmless.
func (s *Store) Subscribe(fn func(schema.State)) func() {
	if fn == nil {
		return func() {}
	}
	return s.subscribe(func(_ uint64, state schema.State) { fn(state) })
}

func (s *Store) subscribe(fn func(version uint64, state schema.State)) func() {
	sub := &subscription{fn: fn}
	sub.active.Store(true)
	s.mu.Lock()
	sub.since = s.version
	s.subs = append(s.subs, sub)
	s.queue = append(s.queue, notification{version: s.version, state: s.snapshotLocked(), target: sub})
	count := len(s.subs)
	s.mu.Unlock()
	s.log.Debug("store subscribe", "subs", count)
	s.flush()
	return func() {
		if !sub.active.Swap(false) {
			return
		}
		s.mu.Lock()
		for i, candidate := range s.subs {
			if candidate == sub {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				break
			}
		}
		count := len(s.subs)
		s.mu.Unlock()
		s.log.Debug("store unsubscribe", "subs", count)
	}
}

func (s *Store) commitLocked() {
	s.version++
	if len(s.subs) == 0 {
		return
	}
	s.queue = append(s.queue, notification{version: s.version, state: s.snapshotLocked()})
}

// flush delivers queued notifications unless another call is already doing
// so; that call drains whatever is queued meanwhile.
func (s *Store) flush() {
	s.mu.Lock()
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.delivering = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	for len(s.queue) > 0 {
		note := s.queue[0]
		s.queue[0] = notification{}
		s.queue = s.queue[1:]
		var targets []*subscription
		if note.target != nil {
			targets = []*subscription{note.target}
		} else {
			targets = make([]*subscription, len(s.subs))
			copy(targets, s.subs)
		}
		s.mu.Unlock()
		for _, sub := range targets {
			if !sub.active.Load() {
				continue
			}
			if note.target == nil && note.version <= sub.since {
				continue
			}
			sub.fn(note.version, note.state.Clone())
		}
		s.mu.Lock()
	}
	s.queue = nil
	s.delivering = false
	s.mu.Unlock()
}

func (s *Store) snapshotLocked() schema.State {
	tabs := make([]schema.Tab, len(s.tabs))
	copy(tabs, s.tabs)
	return schema.State{Tabs: tabs, ActiveTabID: s.active, WindowID: s.windowID}
}

func (s *Store) indexLocked(id schema.TabID) int {
	for i, tab := range s.tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}
