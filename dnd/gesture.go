// Package dnd implements the two-phase drag protocol of a tab strip: a local
// preview while the pointer moves, and a single store reorder on drop.
package dnd

import (
	"context"
	"fmt"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/schema"
)

// Phase is the state of a drag gesture.
type Phase int

const (
	// Idle means no drag is running; the display order is the store order.
	Idle Phase = iota
	// Considering means a drag is running and the display order is a preview.
	Considering
	// Committed is the outcome of a drop that reordered the store.
	Committed
	// Cancelled is the outcome of a drag that left the store untouched.
	Cancelled
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Considering:
		return "considering"
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// Reorderer is the part of a tab store a gesture needs.
type Reorderer interface {
	Tabs() []schema.Tab
	SetTabOrder(order []schema.Tab) error
}

// Snapshot describes a gesture after a change.
type Snapshot struct {
	Phase   Phase
	Outcome Phase
	Preview []schema.Tab
	Drag    schema.DragState
}

// Option configures a Gesture.
type Option func(*Gesture)

// WithLogger sets the gesture logger.
func WithLogger(logger pslog.Logger) Option {
	return func(g *Gesture) {
		if logger != nil {
			g.log = logger
		}
	}
}

// WithObserver registers fn to receive a snapshot after every change. fn is
// called without internal locks held.
func WithObserver(fn func(Snapshot)) Option {
	return func(g *Gesture) {
		g.observer = fn
	}
}

// Gesture tracks one drag at a time over a store. Preview updates never reach
// the store; Drop submits the final preview with one SetTabOrder call.
type Gesture struct {
	store    Reorderer
	log      pslog.Logger
	observer func(Snapshot)

	mu       sync.Mutex
	phase    Phase
	outcome  Phase
	dropping bool
	base     []schema.Tab
	preview  []schema.Tab
	drag     schema.DragState
}

// New constructs an idle gesture over store.
func New(store Reorderer, opts ...Option) *Gesture {
	g := &Gesture{
		store: store,
		log:   pslog.Ctx(context.Background()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Start begins dragging tabID. The current store order becomes the base of
// the preview.
func (g *Gesture) Start(tabID schema.TabID) error {
	g.mu.Lock()
	if g.phase == Considering || g.dropping {
		dragged := g.drag.DraggedTabID
		g.mu.Unlock()
		g.log.Warn("dnd start rejected", "tab", tabID, "dragging", dragged, "err", schema.ErrDragInProgress)
		return schema.ErrDragInProgress
	}
	base := g.store.Tabs()
	if indexOf(base, tabID) < 0 {
		g.mu.Unlock()
		err := fmt.Errorf("%w: %s", schema.ErrTabNotFound, tabID)
		g.log.Warn("dnd start rejected", "tab", tabID, "err", err)
		return err
	}
	g.phase = Considering
	g.base = base
	g.preview = cloneTabs(base)
	g.drag = schema.DragState{IsDragging: true, DraggedTabID: tabID, IsValidDropZone: true}
	snap := g.snapshotLocked()
	g.mu.Unlock()
	g.log.Debug("dnd drag started", "tab", tabID, "count", len(base))
	g.notify(snap)
	return nil
}

// Consider moves the dragged tab to index in the preview. index is clamped to
// the valid range.
func (g *Gesture) Consider(index int) error {
	g.mu.Lock()
	if g.dropping {
		g.mu.Unlock()
		return schema.ErrDragInProgress
	}
	if g.phase != Considering {
		g.mu.Unlock()
		return schema.ErrNoDrag
	}
	from := indexOf(g.preview, g.drag.DraggedTabID)
	dragged := g.preview[from]
	rest := make([]schema.Tab, 0, len(g.preview))
	rest = append(rest, g.preview[:from]...)
	rest = append(rest, g.preview[from+1:]...)
	index = max(0, min(index, len(rest)))
	preview := make([]schema.Tab, 0, len(g.preview))
	preview = append(preview, rest[:index]...)
	preview = append(preview, dragged)
	preview = append(preview, rest[index:]...)
	g.preview = preview
	snap := g.snapshotLocked()
	g.mu.Unlock()
	g.log.Trace("dnd consider", "tab", dragged.ID, "index", index)
	g.notify(snap)
	return nil
}

// ConsiderOrder adopts a complete preview order, as produced by a pointer
// library. order must be a permutation of the order the drag started from.
func (g *Gesture) ConsiderOrder(order []schema.Tab) error {
	g.mu.Lock()
	if g.dropping {
		g.mu.Unlock()
		return schema.ErrDragInProgress
	}
	if g.phase != Considering {
		g.mu.Unlock()
		return schema.ErrNoDrag
	}
	if err := samePermutation(g.base, order); err != nil {
		g.mu.Unlock()
		g.log.Warn("dnd consider rejected", "count", len(order), "err", err)
		return err
	}
	g.preview = cloneTabs(order)
	snap := g.snapshotLocked()
	g.mu.Unlock()
	g.log.Trace("dnd consider order", "count", len(order))
	g.notify(snap)
	return nil
}

// SetDropZone records whether the pointer is over a valid drop target.
func (g *Gesture) SetDropZone(valid bool) error {
	g.mu.Lock()
	if g.dropping {
		g.mu.Unlock()
		return schema.ErrDragInProgress
	}
	if g.phase != Considering {
		g.mu.Unlock()
		return schema.ErrNoDrag
	}
	if g.drag.IsValidDropZone == valid {
		g.mu.Unlock()
		return nil
	}
	g.drag.IsValidDropZone = valid
	snap := g.snapshotLocked()
	g.mu.Unlock()
	g.notify(snap)
	return nil
}

// Drop finishes the drag. Over a valid zone the preview is written to the
// store; if the store rejects it (for example because tabs were added or
// removed meanwhile) the gesture is cancelled and the error returned. Outside
// a valid zone the gesture is cancelled without touching the store.
func (g *Gesture) Drop() error {
	g.mu.Lock()
	if g.dropping {
		g.mu.Unlock()
		return schema.ErrDragInProgress
	}
	if g.phase != Considering {
		g.mu.Unlock()
		return schema.ErrNoDrag
	}
	dragged := g.drag.DraggedTabID
	if !g.drag.IsValidDropZone {
		snap := g.finishLocked(Cancelled)
		g.mu.Unlock()
		g.log.Debug("dnd drop outside zone", "tab", dragged)
		g.notify(snap)
		return nil
	}
	preview := cloneTabs(g.preview)
	g.dropping = true
	g.mu.Unlock()

	err := g.store.SetTabOrder(preview)

	g.mu.Lock()
	g.dropping = false
	outcome := Committed
	if err != nil {
		outcome = Cancelled
	}
	snap := g.finishLocked(outcome)
	g.mu.Unlock()
	if err != nil {
		g.log.Warn("dnd drop rejected", "tab", dragged, "err", err)
	} else {
		g.log.Debug("dnd drop committed", "tab", dragged, "index", indexOf(preview, dragged))
	}
	g.notify(snap)
	return err
}

// Cancel aborts the drag. The store is not called.
func (g *Gesture) Cancel() error {
	g.mu.Lock()
	if g.dropping {
		g.mu.Unlock()
		return schema.ErrDragInProgress
	}
	if g.phase != Considering {
		g.mu.Unlock()
		return schema.ErrNoDrag
	}
	dragged := g.drag.DraggedTabID
	snap := g.finishLocked(Cancelled)
	g.mu.Unlock()
	g.log.Debug("dnd drag cancelled", "tab", dragged)
	g.notify(snap)
	return nil
}

// DisplayOrder returns the order a renderer should show: the preview while
// considering, the store order otherwise.
func (g *Gesture) DisplayOrder() []schema.Tab {
	g.mu.Lock()
	if g.phase == Considering {
		defer g.mu.Unlock()
		return cloneTabs(g.preview)
	}
	g.mu.Unlock()
	return g.store.Tabs()
}

// DragState returns the visual drag feedback.
func (g *Gesture) DragState() schema.DragState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.drag
}

// Phase returns the current phase.
func (g *Gesture) Phase() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.phase
}

// Outcome returns how the last finished gesture ended, or Idle if none has.
func (g *Gesture) Outcome() Phase {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome
}

// Snapshot returns the current gesture state.
func (g *Gesture) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked()
}

func (g *Gesture) finishLocked(outcome Phase) Snapshot {
	g.phase = Idle
	g.outcome = outcome
	g.base = nil
	g.preview = nil
	g.drag = schema.DragState{}
	return g.snapshotLocked()
}

func (g *Gesture) snapshotLocked() Snapshot {
	return Snapshot{
		Phase:   g.phase,
		Outcome: g.outcome,
		Preview: cloneTabs(g.preview),
		Drag:    g.drag,
	}
}

func (g *Gesture) notify(snap Snapshot) {
	if g.observer != nil {
		g.observer(snap)
	}
}

func samePermutation(base, order []schema.Tab) error {
	if len(base) != len(order) {
		return fmt.Errorf("%w: %d tabs, want %d", schema.ErrOrderMismatch, len(order), len(base))
	}
	want := make(map[schema.TabID]int, len(base))
	for _, tab := range base {
		want[tab.ID]++
	}
	for _, tab := range order {
		if want[tab.ID] == 0 {
			return fmt.Errorf("%w: unexpected tab %s", schema.ErrOrderMismatch, tab.ID)
		}
		want[tab.ID]--
	}
	return nil
}

func indexOf(tabs []schema.Tab, id schema.TabID) int {
	for i, tab := range tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}

func cloneTabs(tabs []schema.Tab) []schema.Tab {
	if tabs == nil {
		return nil
	}
	out := make([]schema.Tab, len(tabs))
	copy(out, tabs)
	return out
}
