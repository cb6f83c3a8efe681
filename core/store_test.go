package core

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/schema"
)

type recorder struct {
	mu     sync.Mutex
	states []schema.State
}

func (r *recorder) observe(state schema.State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}

func (r *recorder) last() schema.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[len(r.states)-1]
}

func newTestStore(t *testing.T) (*Store, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	logger := pslog.NewWithOptions(buf, pslog.Options{
		Mode:     pslog.ModeStructured,
		NoColor:  true,
		MinLevel: pslog.DebugLevel,
	})
	seq := 0
	store := NewStore(StoreDeps{
		WindowID: "w1",
		Logger:   logger,
		NewID: func() schema.TabID {
			seq++
			return schema.TabID(fmt.Sprintf("t%d", seq))
		},
	})
	return store, buf
}

func ids(tabs []schema.Tab) string {
	parts := make([]string, 0, len(tabs))
	for _, tab := range tabs {
		parts = append(parts, string(tab.ID))
	}
	return strings.Join(parts, ",")
}

func addThree(store *Store) (schema.TabID, schema.TabID, schema.TabID) {
	a := store.AddTab(schema.TabTypeTextEditor, "A")
	b := store.AddTab(schema.TabTypeDiagramViewer, "B")
	c := store.AddTab(schema.TabTypeWelcome, "C")
	return a, b, c
}

func TestStoreScenario(t *testing.T) {
	store, _ := newTestStore(t)
	first := store.AddTab(schema.TabTypeTextEditor, "Editor 1")
	store.AddTab(schema.TabTypeDiagramViewer, "Diagram 1")
	if tab, ok := store.ActiveTab(); !ok || tab.Title != "Diagram 1" {
		t.Fatalf("expected Diagram 1 active, got %+v", tab)
	}
	if err := store.SetActiveTab(first); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := store.RemoveTab(first); err != nil {
		t.Fatalf("remove: %v", err)
	}
	tabs := store.Tabs()
	if len(tabs) != 1 {
		t.Fatalf("expected 1 tab, got %d", len(tabs))
	}
	if tab, ok := store.ActiveTab(); !ok || tab.Title != "Diagram 1" {
		t.Fatalf("expected Diagram 1 active, got %+v", tab)
	}
}

func TestStoreDefaultIDsAreUnique(t *testing.T) {
	store := NewStore(StoreDeps{})
	if store.WindowID() == "" {
		t.Fatalf("expected generated window id")
	}
	seen := map[schema.TabID]struct{}{}
	for i := 0; i < 200; i++ {
		id := store.AddTab(schema.TabTypeWelcome, "x")
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestStoreReplacesDuplicateGeneratedID(t *testing.T) {
	store := NewStore(StoreDeps{NewID: func() schema.TabID { return "same" }})
	a := store.AddTab(schema.TabTypeWelcome, "a")
	b := store.AddTab(schema.TabTypeWelcome, "b")
	if a == b {
		t.Fatalf("expected distinct ids, got %s twice", a)
	}
}

func TestRemoveActiveSelectsRightNeighbour(t *testing.T) {
	store, _ := newTestStore(t)
	a, b, c := addThree(store)
	if err := store.SetActiveTab(b); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if err := store.RemoveTab(b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	state := store.State()
	if got := ids(state.Tabs); got != string(a)+","+string(c) {
		t.Fatalf("unexpected order %s", got)
	}
	if state.ActiveTabID != c {
		t.Fatalf("expected %s active, got %s", c, state.ActiveTabID)
	}
}

func TestRemoveLastActiveSelectsNewLast(t *testing.T) {
	store, _ := newTestStore(t)
	_, b, c := addThree(store)
	if err := store.RemoveTab(c); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := store.State().ActiveTabID; got != b {
		t.Fatalf("expected %s active, got %s", b, got)
	}
}

func TestRemoveInactiveKeepsActive(t *testing.T) {
	store, _ := newTestStore(t)
	a, _, c := addThree(store)
	if err := store.RemoveTab(a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := store.State().ActiveTabID; got != c {
		t.Fatalf("expected %s active, got %s", c, got)
	}
}

func TestRemoveSoleTabClearsActive(t *testing.T) {
	store, _ := newTestStore(t)
	id := store.AddTab(schema.TabTypeSettings, "S")
	if err := store.CloseTab(id); err != nil {
		t.Fatalf("close: %v", err)
	}
	state := store.State()
	if len(state.Tabs) != 0 || state.ActiveTabID != "" {
		t.Fatalf("expected empty state, got %+v", state)
	}
	if _, ok := store.ActiveTab(); ok {
		t.Fatalf("expected no active tab")
	}
}

func TestRejectedOperationsAreNoOps(t *testing.T) {
	store, logs := newTestStore(t)
	a, b, c := addThree(store)
	rec := &recorder{}
	unsubscribe := store.Subscribe(rec.observe)
	defer unsubscribe()
	before := store.State()

	cases := []struct {
		name string
		run  func() error
		want error
	}{
		{"remove unknown", func() error { return store.RemoveTab("nope") }, schema.ErrTabNotFound},
		{"close unknown", func() error { return store.CloseTab("nope") }, schema.ErrTabNotFound},
		{"activate unknown", func() error { return store.SetActiveTab("nope") }, schema.ErrTabNotFound},
		{"move unknown", func() error { return store.MoveTab("nope", 0) }, schema.ErrTabNotFound},
		{"move negative", func() error { return store.MoveTab(a, -1) }, schema.ErrIndexOutOfRange},
		{"move past end", func() error { return store.MoveTab(a, 3) }, schema.ErrIndexOutOfRange},
		{"order short", func() error { return store.SetTabOrder(before.Tabs[:2]) }, schema.ErrOrderMismatch},
		{"order long", func() error {
			return store.SetTabOrder(append(store.Tabs(), schema.Tab{ID: "extra"}))
		}, schema.ErrOrderMismatch},
		{"order foreign id", func() error {
			return store.SetTabOrder([]schema.Tab{{ID: a}, {ID: b}, {ID: "x"}})
		}, schema.ErrOrderMismatch},
		{"order duplicate id", func() error {
			return store.SetTabOrder([]schema.Tab{{ID: a}, {ID: a}, {ID: c}})
		}, schema.ErrOrderMismatch},
	}
	for _, tc := range cases {
		if err := tc.run(); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
		after := store.State()
		if ids(after.Tabs) != ids(before.Tabs) || after.ActiveTabID != before.ActiveTabID {
			t.Fatalf("%s: state changed from %+v to %+v", tc.name, before, after)
		}
	}
	if rec.count() != 1 {
		t.Fatalf("expected only the initial notification, got %d", rec.count())
	}
	if !strings.Contains(logs.String(), "store tab move rejected") {
		t.Fatalf("expected warning in logs, got %s", logs.String())
	}
}

func TestMoveTab(t *testing.T) {
	store, _ := newTestStore(t)
	a, b, c := addThree(store)
	if err := store.MoveTab(a, 2); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := ids(store.Tabs()); got != strings.Join([]string{string(b), string(c), string(a)}, ",") {
		t.Fatalf("unexpected order %s", got)
	}
	if err := store.MoveTab(a, 0); err != nil {
		t.Fatalf("move: %v", err)
	}
	if got := ids(store.Tabs()); got != strings.Join([]string{string(a), string(b), string(c)}, ",") {
		t.Fatalf("unexpected order %s", got)
	}
	if got := store.State().ActiveTabID; got != c {
		t.Fatalf("move must not change active tab, got %s", got)
	}
}

func TestSetTabOrderKeepsActiveAndAdoptsRecords(t *testing.T) {
	store, _ := newTestStore(t)
	a, b, c := addThree(store)
	if err := store.SetActiveTab(b); err != nil {
		t.Fatalf("set active: %v", err)
	}
	order := []schema.Tab{
		{ID: c, Type: schema.TabTypeWelcome, Title: "C"},
		{ID: a, Type: schema.TabTypeTextEditor, Title: "A renamed"},
		{ID: b, Type: schema.TabTypeDiagramViewer, Title: "B"},
	}
	if err := store.SetTabOrder(order); err != nil {
		t.Fatalf("set order: %v", err)
	}
	order[0].Title = "mutated after call"
	state := store.State()
	if state.ActiveTabID != b {
		t.Fatalf("expected active %s to survive reorder, got %s", b, state.ActiveTabID)
	}
	if state.Tabs[1].Title != "A renamed" {
		t.Fatalf("expected caller record to be adopted, got %+v", state.Tabs[1])
	}
	if state.Tabs[0].Title != "C" {
		t.Fatalf("store must copy the order, got %+v", state.Tabs[0])
	}
}

func TestSetTabOrderEmptyOnEmptyStore(t *testing.T) {
	store, _ := newTestStore(t)
	rec := &recorder{}
	defer store.Subscribe(rec.observe)()
	if err := store.SetTabOrder(nil); err != nil {
		t.Fatalf("expected empty order to be accepted, got %v", err)
	}
	if rec.count() != 2 {
		t.Fatalf("expected initial and accepted notifications, got %d", rec.count())
	}
}

func TestTabsReturnsCopy(t *testing.T) {
	store, _ := newTestStore(t)
	addThree(store)
	tabs := store.Tabs()
	tabs[0].Title = "changed"
	_ = append(tabs[:1], tabs[2:]...)
	if got := store.Tabs(); len(got) != 3 || got[0].Title != "A" {
		t.Fatalf("store leaked internal slice: %+v", got)
	}
}

func TestReset(t *testing.T) {
	store, _ := newTestStore(t)
	addThree(store)
	store.Reset()
	state := store.State()
	if len(state.Tabs) != 0 || state.ActiveTabID != "" || state.WindowID != "w1" {
		t.Fatalf("unexpected state after reset %+v", state)
	}
}

func TestSubscribeReceivesInitialAndUpdates(t *testing.T) {
	store, _ := newTestStore(t)
	store.AddTab(schema.TabTypeWelcome, "W")
	rec := &recorder{}
	unsubscribe := store.Subscribe(rec.observe)
	if rec.count() != 1 || len(rec.last().Tabs) != 1 {
		t.Fatalf("expected initial snapshot, got %d", rec.count())
	}
	store.AddTab(schema.TabTypeSettings, "S")
	if rec.count() != 2 || len(rec.last().Tabs) != 2 {
		t.Fatalf("expected update, got %d", rec.count())
	}
	unsubscribe()
	unsubscribe()
	store.AddTab(schema.TabTypeSettings, "S2")
	if rec.count() != 2 {
		t.Fatalf("expected no delivery after unsubscribe, got %d", rec.count())
	}
}

func TestUnsubscribeAffectsOnlyThatSubscriber(t *testing.T) {
	store, _ := newTestStore(t)
	first := &recorder{}
	second := &recorder{}
	unsubscribeFirst := store.Subscribe(first.observe)
	defer store.Subscribe(second.observe)()
	unsubscribeFirst()
	store.AddTab(schema.TabTypeWelcome, "W")
	if first.count() != 1 {
		t.Fatalf("expected first subscriber to stop, got %d", first.count())
	}
	if second.count() != 2 {
		t.Fatalf("expected second subscriber to continue, got %d", second.count())
	}
}

func TestSubscriberSnapshotsAreIsolated(t *testing.T) {
	store, _ := newTestStore(t)
	store.AddTab(schema.TabTypeWelcome, "W")
	defer store.Subscribe(func(state schema.State) {
		if len(state.Tabs) > 0 {
			state.Tabs[0].Title = "tampered"
		}
	})()
	if tab, _ := store.TabByID("t1"); tab.Title != "W" {
		t.Fatalf("subscriber mutated store state: %+v", tab)
	}
}

func TestNestedMutationIsDeliveredAfterCurrentRound(t *testing.T) {
	store, _ := newTestStore(t)
	var order []string
	nested := false
	defer store.Subscribe(func(state schema.State) {
		order = append(order, "first:"+ids(state.Tabs))
		if len(state.Tabs) == 1 && !nested {
			nested = true
			store.AddTab(schema.TabTypeSettings, "nested")
			if got := len(store.Tabs()); got != 2 {
				t.Errorf("nested mutation must apply immediately, got %d tabs", got)
			}
		}
	})()
	defer store.Subscribe(func(state schema.State) {
		order = append(order, "second:"+ids(state.Tabs))
	})()
	order = nil

	store.AddTab(schema.TabTypeWelcome, "outer")
	want := []string{"first:t1", "second:t1", "first:t1,t2", "second:t1,t2"}
	if strings.Join(order, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected delivery order %v, want %v", order, want)
	}
}

func TestUnsubscribeInsideCallbackStopsOnlyThatSubscriber(t *testing.T) {
	store, _ := newTestStore(t)
	var unsubscribe func()
	selfCalls := 0
	unsubscribe = store.Subscribe(func(state schema.State) {
		selfCalls++
		if len(state.Tabs) == 1 {
			unsubscribe()
		}
	})
	other := &recorder{}
	defer store.Subscribe(other.observe)()

	store.AddTab(schema.TabTypeWelcome, "one")
	store.AddTab(schema.TabTypeWelcome, "two")
	if selfCalls != 2 {
		t.Fatalf("expected initial and one update, got %d", selfCalls)
	}
	if other.count() != 3 {
		t.Fatalf("expected other subscriber to see every update, got %d", other.count())
	}
}

func TestSubscribeInsideCallbackGetsInitialAfterRound(t *testing.T) {
	store, _ := newTestStore(t)
	late := &recorder{}
	var lateUnsub func()
	defer func() {
		if lateUnsub != nil {
			lateUnsub()
		}
	}()
	defer store.Subscribe(func(state schema.State) {
		if len(state.Tabs) == 1 && lateUnsub == nil {
			lateUnsub = store.Subscribe(late.observe)
			if late.count() != 0 {
				t.Errorf("nested subscribe must not deliver during the current round")
			}
		}
	})()
	store.AddTab(schema.TabTypeWelcome, "one")
	if late.count() != 1 || len(late.last().Tabs) != 1 {
		t.Fatalf("expected one initial snapshot, got %d", late.count())
	}
	store.AddTab(schema.TabTypeWelcome, "two")
	if late.count() != 2 {
		t.Fatalf("expected update after subscribe, got %d", late.count())
	}
}

func TestPanickingSubscriberDoesNotWedgeStore(t *testing.T) {
	store, _ := newTestStore(t)
	armed := false
	unsubscribe := store.Subscribe(func(schema.State) {
		if armed {
			panic("boom")
		}
	})
	armed = true
	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		store.AddTab(schema.TabTypeWelcome, "x")
	}()
	unsubscribe()
	rec := &recorder{}
	defer store.Subscribe(rec.observe)()
	store.AddTab(schema.TabTypeWelcome, "y")
	if rec.count() != 2 {
		t.Fatalf("expected deliveries to resume, got %d", rec.count())
	}
}

func TestConcurrentMutations(t *testing.T) {
	store := NewStore(StoreDeps{})
	var mu sync.Mutex
	var versions []int
	defer store.Subscribe(func(state schema.State) {
		mu.Lock()
		versions = append(versions, len(state.Tabs))
		mu.Unlock()
	})()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				store.AddTab(schema.TabTypeWelcome, "x")
			}
		}()
	}
	wg.Wait()
	if got := len(store.Tabs()); got != 200 {
		t.Fatalf("expected 200 tabs, got %d", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(versions); i++ {
		if versions[i] < versions[i-1] {
			t.Fatalf("notifications out of order: %v", versions)
		}
	}
}
