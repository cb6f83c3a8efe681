package sshserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	gliderssh "github.com/gliderlabs/ssh"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/core"
	"pkt.systems/tabstrip/dnd"
	"pkt.systems/tabstrip/internal/eventbus"
	"pkt.systems/tabstrip/schema"
	"pkt.systems/tabstrip/transfer"
)

type inputMode int

const (
	modeCommand inputMode = iota
	modeDrag
)

func (m inputMode) String() string {
	if m == modeDrag {
		return "drag"
	}
	return "command"
}

// errExit is returned by a command that ends the session.
var errExit = errors.New("exit")

type terminalSession struct {
	in       io.Reader
	screen   *screen
	exit     func(code int) error
	registry *core.Registry
	store    *core.Store
	gesture  *dnd.Gesture
	events   <-chan eventbus.Event
	ctx      context.Context

	width  int
	height int

	themeName      schema.ThemeName
	flipDurationMs int
	prompt         string
	mode           inputMode
	editor         lineEditor
	history        *commandHistory
	notice         string
	noticeIsError  bool
	tabWindowStart int
	dirty          bool
	redrawCh       chan struct{}
}

const historyLimit = 100

type terminalOptions struct {
	Registry       *core.Registry
	Store          *core.Store
	Events         <-chan eventbus.Event
	Theme          schema.ThemeName
	FlipDurationMs int
	Prompt         string
}

func newTerminalSession(ctx context.Context, sess gliderssh.Session, opts terminalOptions) *terminalSession {
	if ctx == nil {
		ctx = context.Background()
	}
	t := &terminalSession{
		registry:       opts.Registry,
		store:          opts.Store,
		events:         opts.Events,
		themeName:      opts.Theme,
		flipDurationMs: opts.FlipDurationMs,
		prompt:         opts.Prompt,
		history:        newCommandHistory(historyLimit),
		redrawCh:       make(chan struct{}, 1),
		ctx:            ctx,
	}
	if sess != nil {
		t.in = sess
		t.screen = newScreen(sess)
		t.exit = sess.Exit
	}
	t.gesture = dnd.New(opts.Store,
		dnd.WithLogger(pslog.Ctx(ctx)),
		dnd.WithObserver(func(dnd.Snapshot) { t.requestRedraw() }),
	)
	return t
}

func (t *terminalSession) log() pslog.Logger {
	return pslog.Ctx(t.ctx)
}

func (t *terminalSession) SetSize(width, height int) {
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	t.width = width
	t.height = height
}

// Run drives the session until the client disconnects, the session context
// ends or the user exits.
func (t *terminalSession) Run(winCh <-chan gliderssh.Window) error {
	ctx := t.ctx
	t.screen.EnterAltScreen()
	defer t.screen.ExitAltScreen()

	t.render()
	t.log().Info("tui session start", "width", t.width, "height", t.height)

	keys := make(chan key, 16)
	go readKeys(t.in, keys)

	events := t.events
	for {
		select {
		case <-ctx.Done():
			return nil
		case k, ok := <-keys:
			if !ok {
				return nil
			}
			if t.handleKey(k) {
				return nil
			}
		case win, ok := <-winCh:
			if ok {
				t.SetSize(win.Width, win.Height)
				t.dirty = true
				t.log().Debug("tui resize", "width", t.width, "height", t.height)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				break
			}
			if t.handleEvent(ev) {
				return nil
			}
		case <-t.redrawCh:
			t.dirty = true
		}

		if t.dirty {
			t.render()
			t.dirty = false
		}
	}
}

// handleEvent reacts to a window event and reports whether the session ends.
func (t *terminalSession) handleEvent(ev eventbus.Event) bool {
	switch ev.Type {
	case eventbus.EventState:
		t.log().Trace("tui state event", "version", ev.State.Version)
		t.dirty = true
	case eventbus.EventClosed:
		t.log().Info("tui exit", "reason", "window closed")
		return true
	}
	return false
}

func (t *terminalSession) requestRedraw() {
	select {
	case t.redrawCh <- struct{}{}:
	default:
	}
}

// handleKey applies one key and reports whether the session ends.
func (t *terminalSession) handleKey(k key) bool {
	defer func() { t.dirty = true }()
	if t.mode == modeDrag {
		t.handleDragKey(k)
		return false
	}
	switch k.kind {
	case keyCtrlD:
		if t.editor.Len() == 0 {
			t.log().Info("tui exit", "reason", "ctrl-d")
			t.quit()
			return true
		}
		t.editor.Delete()
	case keyCtrlC:
		t.editor.Clear()
		t.notice = ""
	case keyEnter:
		line := strings.TrimSpace(t.editor.String())
		t.editor.Clear()
		t.notice = ""
		if line == "" {
			return false
		}
		t.history.Add(line)
		if err := t.runCommand(line); err != nil {
			if errors.Is(err, errExit) {
				t.log().Info("tui exit", "reason", "command")
				t.quit()
				return true
			}
			t.setError(err)
		}
	case keyRune:
		t.editor.InsertRune(k.r)
	case keyBackspace:
		t.editor.Backspace()
	case keyDelete:
		t.editor.Delete()
	case keyLeft:
		t.editor.MoveLeft()
	case keyRight:
		t.editor.MoveRight()
	case keyHome, keyCtrlA:
		t.editor.MoveStart()
	case keyEnd, keyCtrlE:
		t.editor.MoveEnd()
	case keyCtrlW:
		t.editor.DeleteWordBackward()
	case keyCtrlU:
		t.editor.KillLineStart()
	case keyCtrlK:
		t.editor.KillLineEnd()
	case keyTab:
		t.cycleTab(1)
	case keyShiftTab:
		t.cycleTab(-1)
	case keyAltLeft:
		t.shiftActive(-1)
	case keyAltRight:
		t.shiftActive(1)
	case keyUp:
		if line, ok := t.history.Prev(t.editor.String()); ok {
			t.editor.SetString(line)
		}
	case keyDown:
		if line, ok := t.history.Next(); ok {
			t.editor.SetString(line)
		}
	}
	return false
}

func (t *terminalSession) handleDragKey(k key) {
	var err error
	switch {
	case k.kind == keyLeft, k.kind == keyRune && k.r == 'h':
		err = t.gesture.Consider(t.draggedIndex() - 1)
	case k.kind == keyRight, k.kind == keyRune && k.r == 'l':
		err = t.gesture.Consider(t.draggedIndex() + 1)
	case k.kind == keyHome:
		err = t.gesture.Consider(0)
	case k.kind == keyEnd:
		err = t.gesture.Consider(len(t.gesture.DisplayOrder()) - 1)
	case k.kind == keyRune && k.r == 'x':
		err = t.gesture.SetDropZone(!t.gesture.DragState().IsValidDropZone)
	case k.kind == keyEnter:
		t.mode = modeCommand
		if err = t.gesture.Drop(); err == nil {
			t.setNotice("drop " + t.gesture.Outcome().String())
		}
	case k.kind == keyEscape, k.kind == keyCtrlC, k.kind == keyRune && k.r == 'q':
		t.mode = modeCommand
		err = t.gesture.Cancel()
		if err == nil {
			t.setNotice("drag cancelled")
		}
	}
	if err != nil {
		t.setError(err)
	}
	if t.gesture.Phase() != dnd.Considering {
		t.mode = modeCommand
	}
}

func (t *terminalSession) draggedIndex() int {
	dragged := t.gesture.DragState().DraggedTabID
	for i, tab := range t.gesture.DisplayOrder() {
		if tab.ID == dragged {
			return i
		}
	}
	return 0
}

func (t *terminalSession) cycleTab(step int) {
	tabs := t.store.Tabs()
	if len(tabs) == 0 {
		return
	}
	idx := 0
	if active, ok := t.store.ActiveTab(); ok {
		idx = indexOfTab(tabs, active.ID)
	}
	next := (idx + step + len(tabs)) % len(tabs)
	if err := t.store.SetActiveTab(tabs[next].ID); err != nil {
		t.setError(err)
	}
}

// shiftActive moves the active tab one position; the edges are no-ops.
func (t *terminalSession) shiftActive(step int) {
	active, ok := t.store.ActiveTab()
	if !ok {
		return
	}
	tabs := t.store.Tabs()
	target := indexOfTab(tabs, active.ID) + step
	if target < 0 || target >= len(tabs) {
		return
	}
	if err := t.store.MoveTab(active.ID, target); err != nil {
		t.setError(err)
	}
}

func (t *terminalSession) runCommand(line string) error {
	fields := strings.Fields(line)
	name := strings.TrimPrefix(fields[0], "/")
	args := fields[1:]
	t.log().Debug("tui command", "command", name, "args", len(args))
	switch name {
	case "quit", "exit", "q":
		return errExit
	case "help", "?":
		t.setNotice("commands: /new /close /tab /move /order /drag /windows /send /reset /programs /theme /quit")
	case "programs":
		names := make([]string, 0, len(schema.Programs()))
		for _, program := range schema.Programs() {
			names = append(names, program.Icon+" "+string(program.Type))
		}
		t.setNotice(strings.Join(names, "  "))
	case "new":
		return t.cmdNew(args)
	case "close":
		return t.cmdClose(args)
	case "tab":
		return t.cmdTab(args)
	case "move":
		return t.cmdMove(args)
	case "order":
		return t.cmdOrder(args)
	case "drag":
		return t.cmdDrag(args)
	case "windows":
		t.cmdWindows()
	case "send":
		return t.cmdSend(args)
	case "reset":
		t.store.Reset()
		t.setNotice("window reset")
	case "theme":
		return t.cmdTheme(args)
	default:
		return fmt.Errorf("unknown command %q; try /help", fields[0])
	}
	return nil
}

func (t *terminalSession) cmdNew(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: /new <type> [title]")
	}
	tabType, err := schema.ParseTabType(args[0])
	if err != nil {
		return err
	}
	title := schema.NormalizeTitle(tabType, strings.Join(args[1:], " "))
	id := t.store.AddTab(tabType, title)
	t.setNotice("opened " + title + " (" + string(id) + ")")
	return nil
}

func (t *terminalSession) cmdClose(args []string) error {
	tab, err := t.tabArg(args)
	if err != nil {
		return err
	}
	return t.store.CloseTab(tab.ID)
}

func (t *terminalSession) cmdTab(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: /tab <n>")
	}
	tab, err := t.tabArg(args)
	if err != nil {
		return err
	}
	return t.store.SetActiveTab(tab.ID)
}

func (t *terminalSession) cmdMove(args []string) error {
	if len(args) != 2 {
		return errors.New("usage: /move <n> <position>")
	}
	tab, err := t.tabArg(args[:1])
	if err != nil {
		return err
	}
	position, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("%w: position %q", schema.ErrInvalidRequest, args[1])
	}
	return t.store.MoveTab(tab.ID, position-1)
}

// cmdOrder applies a full permutation given as 1-based positions.
func (t *terminalSession) cmdOrder(args []string) error {
	tabs := t.store.Tabs()
	order := make([]schema.Tab, 0, len(args))
	for _, arg := range args {
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 || n > len(tabs) {
			return fmt.Errorf("%w: position %q", schema.ErrOrderMismatch, arg)
		}
		order = append(order, tabs[n-1])
	}
	return t.store.SetTabOrder(order)
}

func (t *terminalSession) cmdDrag(args []string) error {
	tab, err := t.tabArg(args)
	if err != nil {
		return err
	}
	if err := t.gesture.Start(tab.ID); err != nil {
		return err
	}
	if err := t.gesture.SetDropZone(true); err != nil {
		return err
	}
	t.mode = modeDrag
	t.setNotice("dragging " + tab.Title)
	return nil
}

func (t *terminalSession) cmdWindows() {
	if t.registry == nil {
		t.setNotice("window " + string(t.store.WindowID()))
		return
	}
	summaries := t.registry.List()
	parts := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		marker := ""
		if summary.ID == t.store.WindowID() {
			marker = "*"
		}
		parts = append(parts, fmt.Sprintf("%s%s(%d)", marker, summary.ID, summary.Tabs))
	}
	t.setNotice(strings.Join(parts, "  "))
}

// cmdSend moves the active tab to another window, or copies it with "copy".
func (t *terminalSession) cmdSend(args []string) error {
	if len(args) == 0 || len(args) > 2 || t.registry == nil {
		return errors.New("usage: /send <window> [copy]")
	}
	move := true
	if len(args) == 2 {
		if args[1] != "copy" {
			return errors.New("usage: /send <window> [copy]")
		}
		move = false
	}
	active, ok := t.store.ActiveTab()
	if !ok {
		return fmt.Errorf("%w: no active tab", schema.ErrTabNotFound)
	}
	target, err := t.resolveWindow(args[0])
	if err != nil {
		return err
	}
	result, err := transfer.Send(t.ctx, t.store, active.ID, target, move)
	if err != nil {
		return err
	}
	t.setNotice(fmt.Sprintf("sent %s to %s as %s", active.Title, target.WindowID(), result.TabID))
	return nil
}

// resolveWindow accepts a full window id or a unique prefix of one.
func (t *terminalSession) resolveWindow(prefix string) (*core.Store, error) {
	if store, err := t.registry.Get(schema.WindowID(prefix)); err == nil {
		return store, nil
	}
	var match schema.WindowID
	for _, summary := range t.registry.List() {
		if strings.HasPrefix(string(summary.ID), prefix) {
			if match != "" {
				return nil, fmt.Errorf("%w: %q is ambiguous", schema.ErrWindowNotFound, prefix)
			}
			match = summary.ID
		}
	}
	if match == "" {
		return nil, fmt.Errorf("%w: %s", schema.ErrWindowNotFound, prefix)
	}
	return t.registry.Get(match)
}

func (t *terminalSession) cmdTheme(args []string) error {
	if len(args) == 0 {
		names := make([]string, 0, len(schema.AvailableThemes()))
		for _, name := range schema.AvailableThemes() {
			names = append(names, string(name))
		}
		t.setNotice("themes: " + strings.Join(names, ", "))
		return nil
	}
	name, ok := schema.NormalizeThemeName(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown theme %q", schema.ErrInvalidRequest, args[0])
	}
	t.themeName = name
	t.setNotice("theme " + string(name))
	return nil
}

// tabArg resolves an optional 1-based position; no argument means the active
// tab.
func (t *terminalSession) tabArg(args []string) (schema.Tab, error) {
	if len(args) == 0 {
		active, ok := t.store.ActiveTab()
		if !ok {
			return schema.Tab{}, fmt.Errorf("%w: no active tab", schema.ErrTabNotFound)
		}
		return active, nil
	}
	tabs := t.store.Tabs()
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 || n > len(tabs) {
		return schema.Tab{}, fmt.Errorf("%w: position %q", schema.ErrTabNotFound, args[0])
	}
	return tabs[n-1], nil
}

func (t *terminalSession) setNotice(message string) {
	t.notice = message
	t.noticeIsError = false
}

func (t *terminalSession) setError(err error) {
	t.notice = err.Error()
	t.noticeIsError = true
}

func (t *terminalSession) quit() {
	if t.gesture.Phase() == dnd.Considering {
		_ = t.gesture.Cancel()
	}
	if t.exit != nil {
		_ = t.exit(0)
	}
}

func (t *terminalSession) view() schema.WindowView {
	zone := schema.DefaultDndZoneConfig(t.store.WindowID(), t.flipDurationMs)
	return schema.BuildWindowView(t.store.State(), t.gesture.DisplayOrder(), t.gesture.DragState(), zone)
}

func (t *terminalSession) render() {
	if t.screen == nil {
		return
	}
	lines, row, col := t.frame()
	if err := t.screen.Render(lines, row, col); err != nil {
		t.log().Warn("tui render failed", "err", err)
	}
}

// frame lays out the tab bar, the body, a status line and the input line.
func (t *terminalSession) frame() ([]string, int, int) {
	width := t.width
	height := t.height
	if width <= 0 {
		width = 80
	}
	if height <= 0 {
		height = 24
	}
	theme := themeForName(t.themeName)
	view := t.view()

	lines := make([]string, 0, height)
	bar, start := renderTabBar(view.Tabs, width, theme, t.tabWindowStart)
	t.tabWindowStart = start
	lines = append(lines, bar)
	lines = append(lines, renderBody(view, t.mode.String(), width, height-3, theme)...)

	status := ""
	if t.notice != "" {
		color := theme.MetaFG
		if t.noticeIsError {
			color = theme.ErrorFG
		}
		status = ansiFgRGB(color) + trimANSIToWidth(t.notice, width) + ansiReset
	}
	lines = append(lines, status)

	prefix := t.prompt
	if prefix == "" {
		prefix = "> "
	}
	if t.mode == modeDrag {
		prefix = "drag> "
	}
	input, col := renderInput(prefix, t.editor.String(), t.editor.cursor, width)
	lines = append(lines, ansiFgRGB(theme.PromptFG)+input+ansiReset)
	return lines, len(lines), col
}

// renderInput scrolls the input horizontally so the cursor stays visible. It
// returns the line and the 1-based cursor column.
func renderInput(prefix, input string, cursor, width int) (string, int) {
	runes := []rune(input)
	cursor = min(max(cursor, 0), len(runes))
	prefixWidth := visibleWidth(prefix)
	avail := max(width-prefixWidth-1, 1)
	offset := 0
	if cursor > avail {
		offset = cursor - avail
	}
	end := min(offset+avail, len(runes))
	return prefix + string(runes[offset:end]), prefixWidth + cursor - offset + 1
}

func indexOfTab(tabs []schema.Tab, id schema.TabID) int {
	for i, tab := range tabs {
		if tab.ID == id {
			return i
		}
	}
	return -1
}
