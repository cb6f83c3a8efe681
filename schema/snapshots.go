package schema

// TabView is a tab decorated with everything a renderer needs.
type TabView struct {
	Tab
	Icon       string        `json:"icon"`
	Active     bool          `json:"active"`
	Attributes TabAttributes `json:"attributes"`
	CloseLabel string        `json:"close_label"`
	Classes    []string      `json:"classes"`
}

// WindowSummary is a short listing entry for a window.
type WindowSummary struct {
	ID          WindowID `json:"id"`
	Tabs        int      `json:"tabs"`
	ActiveTabID TabID    `json:"active_tab_id,omitempty"`
}

// WindowView is the render model of a whole tab strip.
type WindowView struct {
	WindowID    WindowID      `json:"window_id"`
	ActiveTabID TabID         `json:"active_tab_id,omitempty"`
	Tabs        []TabView     `json:"tabs"`
	Drag        DragState     `json:"drag"`
	Zone        DndZoneConfig `json:"zone"`
}

// BuildWindowView decorates tabs for rendering. The order of tabs is kept, so
// callers pass the display order (a drag preview or the store order).
func BuildWindowView(state State, tabs []Tab, drag DragState, zone DndZoneConfig) WindowView {
	view := WindowView{
		WindowID:    state.WindowID,
		ActiveTabID: state.ActiveTabID,
		Tabs:        make([]TabView, 0, len(tabs)),
		Drag:        drag,
		Zone:        zone,
	}
	for _, tab := range tabs {
		active := tab.ID == state.ActiveTabID
		dragging := drag.IsDragging && drag.DraggedTabID == tab.ID
		view.Tabs = append(view.Tabs, TabView{
			Tab:        tab,
			Icon:       TabIcon(tab.Type),
			Active:     active,
			Attributes: NewTabAttributes(tab, active),
			CloseLabel: CloseButtonLabel(tab),
			Classes:    TabClasses(active, dragging),
		})
	}
	return view
}
