package schema

// WindowID identifies a window (one tab store instance).
type WindowID string

// TabID identifies a tab within a window.
type TabID string

// ThemeName identifies a UI theme.
type ThemeName string

// Tab is a single entry in a window's tab strip.
type Tab struct {
	ID    TabID   `json:"id"`
	Type  TabType `json:"type"`
	Title string  `json:"title"`
}

// State is the full snapshot of one window's tab store.
type State struct {
	Tabs        []Tab    `json:"tabs"`
	ActiveTabID TabID    `json:"active_tab_id,omitempty"`
	WindowID    WindowID `json:"window_id"`
}

// Clone returns a copy that shares no memory with s.
func (s State) Clone() State {
	out := State{
		ActiveTabID: s.ActiveTabID,
		WindowID:    s.WindowID,
		Tabs:        make([]Tab, len(s.Tabs)),
	}
	copy(out.Tabs, s.Tabs)
	return out
}

// TabByID returns the tab with id, if present.
func (s State) TabByID(id TabID) (Tab, bool) {
	for _, tab := range s.Tabs {
		if tab.ID == id {
			return tab, true
		}
	}
	return Tab{}, false
}

// ActiveTab returns the active tab, if any.
func (s State) ActiveTab() (Tab, bool) {
	if s.ActiveTabID == "" {
		return Tab{}, false
	}
	return s.TabByID(s.ActiveTabID)
}

// IndexOf returns the position of id in the tab order, or -1.
func (s State) IndexOf(id TabID) int {
	for i, tab := range s.Tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}

// TabIDs returns the ids in tab order.
func TabIDs(tabs []Tab) []TabID {
	out := make([]TabID, 0, len(tabs))
	for _, tab := range tabs {
		out = append(out, tab.ID)
	}
	return out
}
