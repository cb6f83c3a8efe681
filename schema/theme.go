package schema

import "strings"

// DefaultTheme is the default UI theme name.
const DefaultTheme ThemeName = "outrun"

var themeNames = []ThemeName{
	"outrun",
	"gruvbox",
	"tokyo-midnight",
}

var themeAliases = map[string]ThemeName{
	"outrun-electric": "outrun",
	"tokyo":           "tokyo-midnight",
}

// AvailableThemes returns the supported theme names.
func AvailableThemes() []ThemeName {
	out := make([]ThemeName, len(themeNames))
	copy(out, themeNames)
	return out
}

// NormalizeThemeName returns a canonical theme name if supported.
func NormalizeThemeName(name string) (ThemeName, bool) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	normalized = strings.ReplaceAll(normalized, "_", "-")
	if alias, ok := themeAliases[normalized]; ok {
		return alias, true
	}
	for _, theme := range themeNames {
		if string(theme) == normalized {
			return theme, true
		}
	}
	return "", false
}
