package schema

// StateEvent carries a window's state after a successful store mutation.
type StateEvent struct {
	WindowID WindowID `json:"window_id"`
	Version  uint64   `json:"version"`
	State    State    `json:"state"`
}

// WindowEventType describes a window lifecycle change.
type WindowEventType string

const (
	// WindowEventOpened indicates a window was opened.
	WindowEventOpened WindowEventType = "opened"
	// WindowEventClosed indicates a window was closed.
	WindowEventClosed WindowEventType = "closed"
)

// WindowEvent describes a window lifecycle change for transports.
type WindowEvent struct {
	WindowID WindowID        `json:"window_id"`
	Type     WindowEventType `json:"type"`
}

// PreviewEvent carries a drag preview order that is not yet committed.
type PreviewEvent struct {
	WindowID WindowID  `json:"window_id"`
	Phase    string    `json:"phase"`
	Order    []TabID   `json:"order"`
	Drag     DragState `json:"drag"`
}
