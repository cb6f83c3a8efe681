package schema

// TabAttributes are the ARIA attributes of one rendered tab.
type TabAttributes struct {
	Role     string `json:"role"`
	Selected bool   `json:"aria-selected"`
	Label    string `json:"aria-label"`
	TabIndex int    `json:"tabindex"`
}

// NewTabAttributes returns the attributes for tab. Only the active tab is in
// the keyboard focus order.
func NewTabAttributes(tab Tab, active bool) TabAttributes {
	attrs := TabAttributes{
		Role:     "tab",
		Selected: active,
		Label:    "Tab: " + tab.Title,
		TabIndex: -1,
	}
	if active {
		attrs.TabIndex = 0
	}
	return attrs
}

// CloseButtonLabel is the aria-label of a tab's close button.
func CloseButtonLabel(tab Tab) string {
	return "Close tab: " + tab.Title
}

// TabClasses returns the CSS classes of a rendered tab.
func TabClasses(active, dragging bool) []string {
	classes := []string{"tab"}
	if active {
		classes = append(classes, "active")
	}
	if dragging {
		classes = append(classes, "dragging")
	}
	return classes
}
