package schema

import (
	"strings"
	"unicode"
)

// MaxTitleRunes caps tab titles accepted from transports and transfer payloads.
const MaxTitleRunes = 256

// NormalizeTitle trims title, strips control characters and falls back to the
// program display name when nothing is left.
func NormalizeTitle(t TabType, title string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		if program, ok := ProgramFor(t); ok {
			return program.DisplayName
		}
		return string(t)
	}
	runes := []rune(cleaned)
	if len(runes) > MaxTitleRunes {
		cleaned = string(runes[:MaxTitleRunes])
	}
	return cleaned
}

// ValidateWindowID ensures a window id matches [A-Za-z0-9-] with no normalization.
func ValidateWindowID(id WindowID) error {
	raw := string(id)
	if raw == "" || len(raw) > 64 {
		return ErrWindowNotFound
	}
	for _, r := range raw {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' {
			continue
		}
		return ErrWindowNotFound
	}
	return nil
}
