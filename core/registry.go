package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/internal/logx"
	"pkt.systems/tabstrip/schema"
)

// Registry owns one Store per open window and bridges store notifications to
// an EventSink.
type Registry struct {
	sink  EventSink
	log   pslog.Logger
	newID func() schema.TabID

	mu      sync.Mutex
	windows map[schema.WindowID]*window
	seq     uint64
}

type window struct {
	store       *Store
	unsubscribe func()
	opened      time.Time
	seq         uint64
}

// NewRegistry constructs an empty registry.
func NewRegistry(deps RegistryDeps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Registry{
		sink:    deps.EventSink,
		log:     logger,
		newID:   deps.NewID,
		windows: make(map[schema.WindowID]*window),
	}
}

// Open creates a new window with an empty store.
func (r *Registry) Open(ctx context.Context) *Store {
	windowID := newWindowID()
	log := r.log.With("window", windowID)
	if ctx != nil {
		log = logx.WithWindow(ctx, windowID)
	}
	store := NewStore(StoreDeps{WindowID: windowID, Logger: r.log, NewID: r.newID})
	entry := &window{store: store, opened: time.Now()}

	r.mu.Lock()
	r.seq++
	entry.seq = r.seq
	r.windows[windowID] = entry
	count := len(r.windows)
	r.mu.Unlock()

	entry.unsubscribe = store.subscribe(func(version uint64, state schema.State) {
		if r.sink == nil {
			return
		}
		r.sink.OnState(schema.StateEvent{WindowID: windowID, Version: version, State: state})
	})
	log.Info("registry window opened", "windows", count)
	return store
}

// Get returns the store of an open window.
func (r *Registry) Get(windowID schema.WindowID) (*Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry := r.windows[windowID]
	if entry == nil {
		return nil, fmt.Errorf("%w: %s", schema.ErrWindowNotFound, windowID)
	}
	return entry.store, nil
}

// Close closes a window. Its store stops reporting to the sink.
func (r *Registry) Close(windowID schema.WindowID) error {
	r.mu.Lock()
	entry := r.windows[windowID]
	if entry == nil {
		r.mu.Unlock()
		err := fmt.Errorf("%w: %s", schema.ErrWindowNotFound, windowID)
		r.log.Warn("registry window close failed", "window", windowID, "err", err)
		return err
	}
	delete(r.windows, windowID)
	count := len(r.windows)
	r.mu.Unlock()

	if entry.unsubscribe != nil {
		entry.unsubscribe()
	}
	if r.sink != nil {
		r.sink.OnWindowClosed(windowID)
	}
	r.log.Info("registry window closed", "window", windowID, "windows", count, "open_for", time.Since(entry.opened).Round(time.Millisecond))
	return nil
}

// List returns a summary of every open window in the order they were opened.
func (r *Registry) List() []schema.WindowSummary {
	r.mu.Lock()
	entries := make([]*window, 0, len(r.windows))
	for _, entry := range r.windows {
		entries = append(entries, entry)
	}
	r.mu.Unlock()
	slices.SortFunc(entries, func(a, b *window) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]schema.WindowSummary, 0, len(entries))
	for _, entry := range entries {
		state := entry.store.State()
		out = append(out, schema.WindowSummary{
			ID:          state.WindowID,
			Tabs:        len(state.Tabs),
			ActiveTabID: state.ActiveTabID,
		})
	}
	return out
}
