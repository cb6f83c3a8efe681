package sshserver

import (
	"bufio"
	"io"
	"slices"
	"unicode"
	"unicode/utf8"
)

type keyKind int

const (
	keyRune keyKind = iota
	keyEnter
	keyBackspace
	keyDelete
	keyLeft
	keyRight
	keyHome
	keyEnd
	keyUp
	keyDown
	keyCtrlA
	keyCtrlE
	keyCtrlW
	keyCtrlD
	keyCtrlC
	keyCtrlU
	keyCtrlK
	keyTab
	keyShiftTab
	keyEscape
	keyAltLeft
	keyAltRight
)

type key struct {
	kind keyKind
	r    rune
}

var controlKeys = map[byte]keyKind{
	'\n': keyEnter,
	0x7f: keyBackspace,
	0x08: keyBackspace,
	0x01: keyCtrlA,
	0x05: keyCtrlE,
	0x15: keyCtrlU,
	0x0b: keyCtrlK,
	0x17: keyCtrlW,
	0x04: keyCtrlD,
	0x03: keyCtrlC,
	0x09: keyTab,
}

// csiKeys maps the body of an ESC [ sequence. Alt and Ctrl modified arrows
// both move tabs.
var csiKeys = map[string]keyKind{
	"A":    keyUp,
	"B":    keyDown,
	"C":    keyRight,
	"D":    keyLeft,
	"H":    keyHome,
	"1~":   keyHome,
	"7~":   keyHome,
	"F":    keyEnd,
	"4~":   keyEnd,
	"8~":   keyEnd,
	"3~":   keyDelete,
	"Z":    keyShiftTab,
	"1;2Z": keyShiftTab,
	"1;3C": keyAltRight,
	"1;5C": keyAltRight,
	"1;3D": keyAltLeft,
	"1;5D": keyAltLeft,
}

var ss3Keys = map[byte]keyKind{
	'A': keyUp,
	'B': keyDown,
	'C': keyRight,
	'D': keyLeft,
	'H': keyHome,
	'F': keyEnd,
}

const maxCSILength = 8

// readKeys decodes terminal input into keys until r fails. A lone ESC with
// nothing buffered behind it is reported as keyEscape. CR LF is one Enter.
func readKeys(r io.Reader, out chan<- key) {
	defer close(out)
	br := bufio.NewReader(r)
	afterCR := false
	for {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		if afterCR {
			afterCR = false
			if b == '\n' {
				continue
			}
		}
		switch {
		case b == '\r':
			out <- key{kind: keyEnter}
			afterCR = true
		case b == 0x1b:
			if br.Buffered() == 0 {
				out <- key{kind: keyEscape}
				continue
			}
			if k, ok := decodeEscape(br); ok {
				out <- k
			}
		case b < utf8.RuneSelf:
			if kind, ok := controlKeys[b]; ok {
				out <- key{kind: kind}
				continue
			}
			if b >= 0x20 {
				out <- key{kind: keyRune, r: rune(b)}
			}
		default:
			_ = br.UnreadByte()
			rn, _, err := br.ReadRune()
			if err != nil {
				return
			}
			out <- key{kind: keyRune, r: rn}
		}
	}
}

func decodeEscape(br *bufio.Reader) (key, bool) {
	b, err := br.ReadByte()
	if err != nil {
		return key{}, false
	}
	switch b {
	case '[':
		var seq []byte
		for len(seq) <= maxCSILength {
			c, err := br.ReadByte()
			if err != nil {
				return key{}, false
			}
			seq = append(seq, c)
			if c == '~' || unicode.IsLetter(rune(c)) {
				kind, ok := csiKeys[string(seq)]
				return key{kind: kind}, ok
			}
		}
		return key{}, false
	case 'O':
		c, err := br.ReadByte()
		if err != nil {
			return key{}, false
		}
		kind, ok := ss3Keys[c]
		return key{kind: kind}, ok
	case 0x1b:
		return key{kind: keyEscape}, true
	}
	return key{}, false
}

// lineEditor is a single line of input with a rune cursor.
type lineEditor struct {
	buf    []rune
	cursor int
}

func (e *lineEditor) String() string { return string(e.buf) }

func (e *lineEditor) Len() int { return len(e.buf) }

func (e *lineEditor) Clear() {
	e.buf = e.buf[:0]
	e.cursor = 0
}

func (e *lineEditor) SetString(value string) {
	e.buf = []rune(value)
	e.cursor = len(e.buf)
}

func (e *lineEditor) InsertRune(r rune) {
	e.cursor = min(max(e.cursor, 0), len(e.buf))
	e.buf = slices.Insert(e.buf, e.cursor, r)
	e.cursor++
}

func (e *lineEditor) Backspace() {
	if e.cursor == 0 {
		return
	}
	e.buf = slices.Delete(e.buf, e.cursor-1, e.cursor)
	e.cursor--
}

func (e *lineEditor) Delete() {
	if e.cursor >= len(e.buf) {
		return
	}
	e.buf = slices.Delete(e.buf, e.cursor, e.cursor+1)
}

func (e *lineEditor) MoveLeft()  { e.cursor = max(e.cursor-1, 0) }
func (e *lineEditor) MoveRight() { e.cursor = min(e.cursor+1, len(e.buf)) }
func (e *lineEditor) MoveStart() { e.cursor = 0 }
func (e *lineEditor) MoveEnd()   { e.cursor = len(e.buf) }

// DeleteWordBackward removes the word before the cursor along with the
// blanks that follow it.
func (e *lineEditor) DeleteWordBackward() {
	start := e.cursor
	for start > 0 && unicode.IsSpace(e.buf[start-1]) {
		start--
	}
	for start > 0 && !unicode.IsSpace(e.buf[start-1]) {
		start--
	}
	e.buf = slices.Delete(e.buf, start, e.cursor)
	e.cursor = start
}

func (e *lineEditor) KillLineStart() {
	e.buf = slices.Delete(e.buf, 0, e.cursor)
	e.cursor = 0
}

func (e *lineEditor) KillLineEnd() {
	e.buf = e.buf[:e.cursor]
}

// commandHistory keeps submitted lines for Up/Down recall. The line being
// typed when browsing starts is restored after the newest entry.
type commandHistory struct {
	entries []string
	limit   int
	pos     int
	draft   string
}

func newCommandHistory(limit int) *commandHistory {
	return &commandHistory{limit: limit}
}

// Add records line unless it repeats the newest entry, and resets browsing.
func (h *commandHistory) Add(line string) {
	if n := len(h.entries); line != "" && (n == 0 || h.entries[n-1] != line) {
		h.entries = append(h.entries, line)
		if h.limit > 0 && len(h.entries) > h.limit {
			h.entries = slices.Delete(h.entries, 0, len(h.entries)-h.limit)
		}
	}
	h.pos = len(h.entries)
	h.draft = ""
}

// Prev steps back from the current line. ok is false when there is nothing
// older.
func (h *commandHistory) Prev(current string) (string, bool) {
	if h.pos == 0 {
		return "", false
	}
	if h.pos == len(h.entries) {
		h.draft = current
	}
	h.pos--
	return h.entries[h.pos], true
}

// Next steps forward, ending at the saved draft.
func (h *commandHistory) Next() (string, bool) {
	if h.pos >= len(h.entries) {
		return "", false
	}
	h.pos++
	if h.pos == len(h.entries) {
		return h.draft, true
	}
	return h.entries[h.pos], true
}
