package schema

import (
	"fmt"
	"strings"
)

// DragState is the visual feedback for an in-flight drag.
type DragState struct {
	IsDragging      bool  `json:"is_dragging"`
	DraggedTabID    TabID `json:"dragged_tab_id,omitempty"`
	IsValidDropZone bool  `json:"is_valid_drop_zone"`
}

// DropEffect is the outcome a drop target reports back to the drag source.
type DropEffect string

const (
	// DropEffectNone means the drop was refused.
	DropEffectNone DropEffect = "none"
	// DropEffectCopy means the target created its own copy.
	DropEffectCopy DropEffect = "copy"
	// DropEffectLink means the target linked to the source.
	DropEffectLink DropEffect = "link"
	// DropEffectMove means the target took ownership; the source should close its copy.
	DropEffectMove DropEffect = "move"
)

// ParseDropEffect normalizes value. An empty value is DropEffectNone.
func ParseDropEffect(value string) (DropEffect, error) {
	switch effect := DropEffect(strings.ToLower(strings.TrimSpace(value))); effect {
	case "":
		return DropEffectNone, nil
	case DropEffectNone, DropEffectCopy, DropEffectLink, DropEffectMove:
		return effect, nil
	default:
		return "", fmt.Errorf("%w: drop effect %q", ErrInvalidRequest, value)
	}
}

// DndZoneConfig configures the drag zone of one tab strip.
type DndZoneConfig struct {
	ID             string `json:"id"`
	Type           string `json:"type"`
	DragHandle     bool   `json:"drag_handle"`
	FlipDurationMs int    `json:"flip_duration_ms"`
}

// DefaultFlipDurationMs is the reorder animation length used when none is configured.
const DefaultFlipDurationMs = 200

// DefaultDndZoneConfig returns the zone configuration for a window's strip.
func DefaultDndZoneConfig(windowID WindowID, flipDurationMs int) DndZoneConfig {
	if flipDurationMs <= 0 {
		flipDurationMs = DefaultFlipDurationMs
	}
	return DndZoneConfig{
		ID:             "tabstrip-" + string(windowID),
		Type:           "tab",
		DragHandle:     false,
		FlipDurationMs: flipDurationMs,
	}
}
