package transfer

import (
	"context"
	"errors"
	"fmt"

	"pkt.systems/tabstrip/internal/logx"
	"pkt.systems/tabstrip/schema"
)

// Receiver is the part of a tab store a drop target needs.
type Receiver interface {
	WindowID() schema.WindowID
	AddTab(tabType schema.TabType, title string) schema.TabID
}

// Closer is the part of a tab store a drag source needs.
type Closer interface {
	WindowID() schema.WindowID
	CloseTab(id schema.TabID) error
}

// Source is a drag source that can also look up the dragged tab.
type Source interface {
	Closer
	TabByID(id schema.TabID) (schema.Tab, bool)
}

// Result describes an accepted drop.
type Result struct {
	TabID          schema.TabID      `json:"tab_id"`
	SourceTabID    schema.TabID      `json:"source_tab_id"`
	SourceWindowID schema.WindowID   `json:"source_window_id,omitempty"`
	DropEffect     schema.DropEffect `json:"drop_effect"`
}

// Receive applies a dropped payload to store. The tab is re-created with a
// fresh id. Malformed payloads and payloads from the same window create no
// tab; the returned error says why and the drop effect is none.
func Receive(ctx context.Context, store Receiver, raw []byte) (Result, error) {
	windowID := store.WindowID()
	log := logx.WithWindow(ctx, windowID)
	payload, err := Decode(raw)
	if err != nil {
		log.Warn("transfer drop ignored", "err", err)
		return Result{DropEffect: schema.DropEffectNone}, err
	}
	if payload.SourceWindowID == windowID {
		log.Debug("transfer drop from same window ignored", "tab", payload.ID)
		return Result{SourceTabID: payload.ID, SourceWindowID: windowID, DropEffect: schema.DropEffectNone}, schema.ErrSameWindow
	}
	title := schema.NormalizeTitle(payload.Type, payload.Title)
	id := store.AddTab(payload.Type, title)
	log.Info("transfer tab received", "tab", id, "source_tab", payload.ID, "source_window", payload.SourceWindowID)
	return Result{
		TabID:          id,
		SourceTabID:    payload.ID,
		SourceWindowID: payload.SourceWindowID,
		DropEffect:     schema.DropEffectMove,
	}, nil
}

// DragEnd finishes a drag on the originating window. A move effect closes the
// source tab, which turns the copy made by the receiver into a relocation.
// Other effects leave the source alone.
func DragEnd(ctx context.Context, store Closer, tabID schema.TabID, effect schema.DropEffect) (bool, error) {
	log := logx.WithWindowTab(ctx, store.WindowID(), tabID)
	if effect != schema.DropEffectMove {
		log.Debug("transfer drag ended", "drop_effect", effect)
		return false, nil
	}
	if err := store.CloseTab(tabID); err != nil {
		if errors.Is(err, schema.ErrTabNotFound) {
			log.Debug("transfer source already closed")
			return false, nil
		}
		return false, fmt.Errorf("close transferred tab: %w", err)
	}
	log.Info("transfer tab moved out")
	return true, nil
}

// Send moves or copies a tab between two stores in one process using the
// same payload path a browser drag takes.
func Send(ctx context.Context, from Source, tabID schema.TabID, to Receiver, move bool) (Result, error) {
	tab, ok := from.TabByID(tabID)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", schema.ErrTabNotFound, tabID)
	}
	raw, err := Encode(tab, from.WindowID())
	if err != nil {
		return Result{}, err
	}
	result, err := Receive(ctx, to, raw)
	if err != nil {
		return result, err
	}
	effect := schema.DropEffectCopy
	if move {
		effect = schema.DropEffectMove
	}
	result.DropEffect = effect
	if _, err := DragEnd(ctx, from, tabID, effect); err != nil {
		return result, err
	}
	return result, nil
}
