// Package transfer encodes tabs for drags between windows and applies them on
// the receiving and originating side.
package transfer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/tabstrip/schema"
)

// MIMEType is the data transfer key the payload travels under.
const MIMEType = "application/x-tabstrip-tab"

// MaxPayloadBytes bounds the size of an encoded payload.
const MaxPayloadBytes = 16 << 10

// Payload is the wire form of a dragged tab.
type Payload struct {
	ID             schema.TabID    `json:"id"`
	Type           schema.TabType  `json:"type"`
	Title          string          `json:"title"`
	SourceWindowID schema.WindowID `json:"sourceWindowId,omitempty"`
}

// Tab returns the tab described by the payload.
func (p Payload) Tab() schema.Tab {
	return schema.Tab{ID: p.ID, Type: p.Type, Title: p.Title}
}

// Encode builds the payload for tab dragged out of windowID. Titles longer
// than schema.MaxTitleRunes are cut so Decode accepts every encoded tab.
func Encode(tab schema.Tab, windowID schema.WindowID) ([]byte, error) {
	if tab.ID == "" {
		return nil, fmt.Errorf("%w: missing id", schema.ErrInvalidTransfer)
	}
	if !tab.Type.Valid() {
		return nil, fmt.Errorf("%w: %w: %q", schema.ErrInvalidTransfer, schema.ErrUnknownTabType, tab.Type)
	}
	return json.Marshal(Payload{
		ID:             tab.ID,
		Type:           tab.Type,
		Title:          truncateTitle(tab.Title),
		SourceWindowID: windowID,
	})
}

// Decode parses and validates a payload. Every failure wraps
// schema.ErrInvalidTransfer.
func Decode(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Payload{}, fmt.Errorf("%w: empty payload", schema.ErrInvalidTransfer)
	}
	if len(raw) > MaxPayloadBytes {
		return Payload{}, fmt.Errorf("%w: payload is %d bytes", schema.ErrInvalidTransfer, len(raw))
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", schema.ErrInvalidTransfer, err)
	}
	if strings.TrimSpace(string(payload.ID)) == "" {
		return Payload{}, fmt.Errorf("%w: missing id", schema.ErrInvalidTransfer)
	}
	tabType, err := schema.ParseTabType(string(payload.Type))
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", schema.ErrInvalidTransfer, err)
	}
	payload.Type = tabType
	if !utf8.ValidString(payload.Title) {
		return Payload{}, fmt.Errorf("%w: title is not utf-8", schema.ErrInvalidTransfer)
	}
	if n := utf8.RuneCountInString(payload.Title); n > schema.MaxTitleRunes {
		return Payload{}, fmt.Errorf("%w: title has %d runes", schema.ErrInvalidTransfer, n)
	}
	return payload, nil
}

func truncateTitle(title string) string {
	if utf8.RuneCountInString(title) <= schema.MaxTitleRunes {
		return title
	}
	return string([]rune(title)[:schema.MaxTitleRunes])
}
