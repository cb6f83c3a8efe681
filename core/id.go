package core

import (
	"github.com/google/uuid"
	"pkt.systems/tabstrip/schema"
)

func newTabID() schema.TabID {
	return schema.TabID(uuid.NewString())
}

func newWindowID() schema.WindowID {
	return schema.WindowID(uuid.NewString())
}
