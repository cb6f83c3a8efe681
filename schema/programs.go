package schema

import (
	"fmt"
	"strings"
)

// TabType selects the program a tab hosts.
type TabType string

const (
	// TabTypeTextEditor hosts a text editor.
	TabTypeTextEditor TabType = "text-editor"
	// TabTypeDiagramViewer hosts a diagram viewer.
	TabTypeDiagramViewer TabType = "diagram-viewer"
	// TabTypeWelcome hosts the welcome page.
	TabTypeWelcome TabType = "welcome"
	// TabTypeSettings hosts the settings page.
	TabTypeSettings TabType = "settings"
)

// FallbackIcon is shown for tab types without a catalogue entry.
const FallbackIcon = "📄"

// ProgramDefinition describes an entry of the "open program" menu.
type ProgramDefinition struct {
	Type        TabType `json:"type"`
	DisplayName string  `json:"display_name"`
	Description string  `json:"description"`
	Icon        string  `json:"icon,omitempty"`
}

var programs = []ProgramDefinition{
	{
		Type:        TabTypeTextEditor,
		DisplayName: "Text Editor",
		Description: "Edit plain text documents.",
		Icon:        "📝",
	},
	{
		Type:        TabTypeDiagramViewer,
		DisplayName: "Diagram Viewer",
		Description: "View and inspect diagrams.",
		Icon:        "📊",
	},
	{
		Type:        TabTypeWelcome,
		DisplayName: "Welcome",
		Description: "Getting started with tabs and drag-and-drop.",
		Icon:        "👋",
	},
	{
		Type:        TabTypeSettings,
		DisplayName: "Settings",
		Description: "Application preferences.",
		Icon:        "⚙️",
	},
}

// Programs returns the program catalogue in menu order.
func Programs() []ProgramDefinition {
	out := make([]ProgramDefinition, len(programs))
	copy(out, programs)
	return out
}

// ProgramFor returns the catalogue entry for t.
func ProgramFor(t TabType) (ProgramDefinition, bool) {
	for _, program := range programs {
		if program.Type == t {
			return program, true
		}
	}
	return ProgramDefinition{}, false
}

// TabIcon returns the icon for t, or FallbackIcon for unknown types.
func TabIcon(t TabType) string {
	if program, ok := ProgramFor(t); ok && program.Icon != "" {
		return program.Icon
	}
	return FallbackIcon
}

// Valid reports whether t is in the catalogue.
func (t TabType) Valid() bool {
	_, ok := ProgramFor(t)
	return ok
}

// ParseTabType normalizes value into a catalogue tab type.
func ParseTabType(value string) (TabType, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	t := TabType(normalized)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTabType, value)
	}
	return t, nil
}
