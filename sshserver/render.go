package sshserver

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"pkt.systems/tabstrip/schema"
)

const maxTabLabel = 16

// tabLabel is the text shown for a tab in the bar.
func tabLabel(tab schema.TabView) string {
	return " " + tab.Icon + " " + truncateName(tab.Title, maxTabLabel) + " "
}

// renderTabBar renders the tab strip into one line of exactly width columns.
// When the tabs do not fit, a window of tabs around the active one is shown
// with < and > marking hidden tabs on either side. The returned start is the
// first visible index and should be passed back on the next render so the
// window only scrolls when the active tab leaves it.
func renderTabBar(tabs []schema.TabView, width int, theme tuiTheme, windowStart int) (string, int) {
	if width <= 0 {
		width = 80
	}
	barStyle := ansiBgRGB(theme.TabBarBG) + ansiFgRGB(theme.TabInactiveFG)
	indicatorStyle := barStyle + ansiBold

	var b strings.Builder
	b.WriteString(barStyle)
	if len(tabs) == 0 {
		b.WriteString(ansiDim + " no tabs " + ansiReset + barStyle)
		return padLine(b.String(), width) + ansiReset, 0
	}

	labels := make([]string, len(tabs))
	widths := make([]int, len(tabs))
	activeIndex := 0
	total := 0
	for i, tab := range tabs {
		labels[i] = tabLabel(tab)
		widths[i] = visibleWidth(labels[i])
		total += widths[i]
		if tab.Active {
			activeIndex = i
		}
	}

	window := tabWindow{start: 0, end: len(tabs)}
	if total > width {
		window = fitWindow(widths, windowStart, width)
		if activeIndex < window.start {
			window = fitWindow(widths, activeIndex, width)
		} else if activeIndex >= window.end {
			window = fitWindowEndingAt(widths, activeIndex+1, width)
		}
	}

	if window.leftHidden {
		b.WriteString(indicatorStyle + "<" + barStyle)
	}
	for i := window.start; i < window.end; i++ {
		b.WriteString(tabStyle(tabs[i], theme))
		b.WriteString(labels[i])
		b.WriteString(ansiReset + barStyle)
	}
	line := b.String()
	if window.rightHidden {
		line = padLine(trimANSIToWidth(line, width-1), width-1)
		line += indicatorStyle + ">" + barStyle
	}
	return padLine(line, width) + ansiReset, window.start
}

func tabStyle(tab schema.TabView, theme tuiTheme) string {
	dragging := false
	for _, class := range tab.Classes {
		if class == "dragging" {
			dragging = true
		}
	}
	switch {
	case dragging:
		return ansiBgRGB(theme.TabDraggingBG) + ansiFgRGB(theme.TabDraggingFG) + ansiBold + ansiUnderline
	case tab.Active:
		return ansiBgRGB(theme.TabActiveBG) + ansiFgRGB(theme.TabActiveFG) + ansiBold
	default:
		return ansiBgRGB(theme.TabInactiveBG) + ansiFgRGB(theme.TabInactiveFG)
	}
}

type tabWindow struct {
	start       int
	end         int
	leftHidden  bool
	rightHidden bool
}

// fitWindow fills the bar forward from start. The indicator columns depend on
// the result, so the fit is repeated until it is stable.
func fitWindow(widths []int, start int, width int) tabWindow {
	n := len(widths)
	start = min(max(start, 0), n-1)
	w := tabWindow{start: start, leftHidden: start > 0}
	for range 3 {
		w.end = fitForward(widths, start, available(width, w))
		w.rightHidden = w.end < n
	}
	return w
}

// fitWindowEndingAt fills the bar backward so that the tab before end is the
// last visible one.
func fitWindowEndingAt(widths []int, end int, width int) tabWindow {
	n := len(widths)
	end = min(max(end, 1), n)
	w := tabWindow{end: end, rightHidden: end < n}
	for range 3 {
		w.start = fitBackward(widths, end, available(width, w))
		w.leftHidden = w.start > 0
	}
	return w
}

func available(width int, w tabWindow) int {
	avail := width
	if w.leftHidden {
		avail--
	}
	if w.rightHidden {
		avail--
	}
	return max(avail, 1)
}

func fitForward(widths []int, start int, avail int) int {
	sum := 0
	end := start
	for i := start; i < len(widths); i++ {
		if sum+widths[i] > avail {
			break
		}
		sum += widths[i]
		end = i + 1
	}
	return max(end, start+1)
}

func fitBackward(widths []int, end int, avail int) int {
	sum := 0
	start := end
	for i := end - 1; i >= 0; i-- {
		if sum+widths[i] > avail {
			break
		}
		sum += widths[i]
		start = i
	}
	return min(start, end-1)
}

// renderBody describes the active tab and, while dragging, the pending order.
func renderBody(view schema.WindowView, mode string, width, height int, theme tuiTheme) []string {
	if height <= 0 {
		return nil
	}
	meta := ansiFgRGB(theme.MetaFG)
	title := ansiFgRGB(theme.TitleFG) + ansiBold
	var lines []string
	var active *schema.TabView
	for i := range view.Tabs {
		if view.Tabs[i].Active {
			active = &view.Tabs[i]
		}
	}
	switch {
	case active != nil:
		lines = append(lines, "", title+active.Icon+" "+active.Title+ansiReset)
		if program, ok := schema.ProgramFor(active.Type); ok {
			lines = append(lines, meta+program.DisplayName+": "+program.Description+ansiReset)
		} else {
			lines = append(lines, meta+string(active.Type)+ansiReset)
		}
		lines = append(lines, meta+active.Attributes.Label+ansiReset)
	default:
		lines = append(lines, "", meta+"no tabs open; use /new <type> [title]"+ansiReset)
	}
	if view.Drag.IsDragging {
		zone := "outside the strip"
		if view.Drag.IsValidDropZone {
			zone = "over the strip"
		}
		lines = append(lines, "", title+"dragging "+string(view.Drag.DraggedTabID)+" ("+zone+")"+ansiReset,
			meta+"left/right move, enter drop, x toggle zone, esc cancel"+ansiReset)
	}
	lines = append(lines, "", meta+fmt.Sprintf("window %s  mode %s  %d tab(s)", view.WindowID, mode, len(view.Tabs))+ansiReset)

	out := make([]string, 0, height)
	for _, line := range lines {
		if len(out) >= height {
			break
		}
		out = append(out, trimANSIToWidth(line, width))
	}
	for len(out) < height {
		out = append(out, "")
	}
	return out
}

func padLine(line string, width int) string {
	if visible := visibleWidth(line); visible < width {
		line += strings.Repeat(" ", width-visible)
	}
	return trimANSIToWidth(line, width)
}

func truncateName(name string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(name)
	if len(runes) <= limit {
		return name
	}
	if limit == 1 {
		return "…"
	}
	return string(append(runes[:limit-1], '…'))
}

func skipEscape(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '[':
		return skipCSI(text, i+1)
	case ']':
		return skipOSC(text, i+1)
	default:
		return i + 1
	}
}

func skipCSI(text string, i int) int {
	for i < len(text) {
		b := text[i]
		if b >= 0x40 && b <= 0x7e {
			return i + 1
		}
		i++
	}
	return i
}

func skipOSC(text string, i int) int {
	for i < len(text) {
		switch text[i] {
		case 0x07:
			return i + 1
		case 0x1b:
			if i+1 < len(text) && text[i+1] == '\\' {
				return i + 2
			}
		}
		i++
	}
	return i
}

func visibleWidth(text string) int {
	width := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			i = skipEscape(text, i+1)
			continue
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		i += size
		width++
	}
	return width
}

func trimANSIToWidth(text string, width int) string {
	if width <= 0 {
		return ""
	}
	var b strings.Builder
	visible := 0
	for i := 0; i < len(text); {
		if text[i] == 0x1b {
			start := i
			i = skipEscape(text, i+1)
			b.WriteString(text[start:i])
			continue
		}
		if visible >= width {
			break
		}
		r, size := utf8.DecodeRuneInString(text[i:])
		if size == 0 {
			break
		}
		b.WriteRune(r)
		i += size
		visible++
	}
	return b.String()
}
