package core

import (
	"pkt.systems/pslog"
	"pkt.systems/tabstrip/schema"
)

// StoreDeps captures optional dependencies for a tab store.
type StoreDeps struct {
	WindowID schema.WindowID
	Logger   pslog.Logger
	NewID    func() schema.TabID
}

// RegistryDeps captures optional dependencies for the window registry.
type RegistryDeps struct {
	EventSink EventSink
	Logger    pslog.Logger
	NewID     func() schema.TabID
}
