package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"pkt.systems/pslog"
	"pkt.systems/tabstrip/core"
	"pkt.systems/tabstrip/dnd"
	"pkt.systems/tabstrip/internal/logx"
	"pkt.systems/tabstrip/schema"
	"pkt.systems/tabstrip/transfer"
)

// Server serves the HTTP API and UI.
type Server struct {
	cfg      Config
	registry *core.Registry
	sessions *sessionStore
	hub      *Hub
	basePath string
	baseHref string

	mu       sync.Mutex
	gestures map[schema.WindowID]*dnd.Gesture
}

// NewServer constructs an HTTP server over the shared window registry.
func NewServer(cfg Config, registry *core.Registry, hub *Hub) *Server {
	ttl := time.Duration(cfg.SessionTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if strings.TrimSpace(cfg.SessionCookie) == "" {
		cfg.SessionCookie = "tabstrip_session"
	}
	if hub == nil {
		hub = NewHub(cfg.HubHistory, cfg.FlipDurationMs)
	}
	s := &Server{
		cfg:      cfg,
		registry: registry,
		sessions: newSessionStore(ttl),
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
		baseHref: buildBaseHref(cfg.BaseURL, cfg.BasePath),
		gestures: make(map[schema.WindowID]*dnd.Gesture),
	}
	s.sessions.onClose = s.closeSessionWindows
	return s
}

// SetBaseContext sets the parent context for session lifetimes.
func (s *Server) SetBaseContext(ctx context.Context) {
	if s == nil || ctx == nil {
		return
	}
	s.sessions.setBaseContext(ctx)
}

// SweepSessions expires idle sessions every interval until ctx is done.
func (s *Server) SweepSessions(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.sessions.sweep(now); n > 0 {
				pslog.Ctx(ctx).Debug("http sessions swept", "expired", n)
			}
		}
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, withRequestLogging(s.lookupSession), middleware.Recoverer)
	r.Get("/", s.handleIndex)
	r.Handle("/assets/*", http.StripPrefix("/assets/", http.FileServer(http.FS(assetsFS))))
	r.Get("/api/programs", s.handlePrograms)
	r.Route("/api/windows", func(r chi.Router) {
		r.Use(s.withSession)
		r.Post("/", s.handleOpenWindow)
		r.Get("/", s.handleListWindows)
		r.Route("/{window}", func(r chi.Router) {
			r.Use(s.withWindow)
			r.Delete("/", s.handleCloseWindow)
			r.Get("/tabs", s.handleGetTabs)
			r.Post("/tabs", s.handleAddTab)
			r.Delete("/tabs/{tab}", s.handleCloseTab)
			r.Post("/tabs/{tab}/activate", s.handleActivate)
			r.Post("/tabs/{tab}/move", s.handleMove)
			r.Get("/tabs/{tab}/transfer", s.handleTransfer)
			r.Post("/tabs/{tab}/dragend", s.handleDragEnd)
			r.Put("/order", s.handleSetOrder)
			r.Post("/reset", s.handleReset)
			r.Post("/drag/start", s.handleDragStart)
			r.Post("/drag/over", s.handleDragOver)
			r.Post("/drag/drop", s.handleDragDrop)
			r.Post("/drag/cancel", s.handleDragCancel)
			r.Post("/drop", s.handleDrop)
			r.Get("/stream", s.handleStream)
		})
	})

	if s.basePath == "" {
		return r
	}
	prefix := s.basePath
	root := http.NewServeMux()
	root.Handle(prefix+"/", http.StripPrefix(prefix, r))
	root.HandleFunc(prefix, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != prefix {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, prefix+"/", http.StatusTemporaryRedirect)
	})
	return root
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	stat, err := fs.Stat(assetsFS, "index.html")
	if err != nil {
		http.Error(w, "index not found", http.StatusInternalServerError)
		return
	}
	data = applyBaseHref(data, s.baseHref)
	data = applyUISettings(data, s.cfg.Theme, s.cfg.FlipDurationMs)
	http.ServeContent(w, r, "index.html", stat.ModTime(), bytes.NewReader(data))
}

const (
	baseHrefPlaceholder     = "<!-- BASE_HREF -->"
	themePlaceholder        = "UI_THEME"
	flipDurationPlaceholder = "UI_FLIP_DURATION_MS"
)

func applyBaseHref(data []byte, baseHref string) []byte {
	replacement := ""
	if strings.TrimSpace(baseHref) != "" {
		replacement = fmt.Sprintf(`<base href="%s" />`, html.EscapeString(baseHref))
	}
	return bytes.ReplaceAll(data, []byte(baseHrefPlaceholder), []byte(replacement))
}

func applyUISettings(data []byte, theme string, flipDurationMs int) []byte {
	name, ok := schema.NormalizeThemeName(theme)
	if !ok {
		name = schema.DefaultTheme
	}
	if flipDurationMs <= 0 {
		flipDurationMs = schema.DefaultFlipDurationMs
	}
	data = bytes.ReplaceAll(data, []byte(themePlaceholder), []byte(name))
	return bytes.ReplaceAll(data, []byte(flipDurationPlaceholder), []byte(strconv.Itoa(flipDurationMs)))
}

func (s *Server) handlePrograms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"programs": schema.Programs()})
}

func (s *Server) handleOpenWindow(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	store := s.registry.Open(r.Context())
	windowID := store.WindowID()
	s.sessions.addWindow(sess, windowID)
	logx.WithWindow(r.Context(), windowID).Info("http window opened")
	writeJSON(w, http.StatusCreated, map[string]any{
		"window_id": windowID,
		"zone":      schema.DefaultDndZoneConfig(windowID, s.cfg.FlipDurationMs),
	})
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	all := s.registry.List()
	owned := make([]schema.WindowSummary, 0, len(all))
	for _, summary := range all {
		if s.sessions.owns(sess, summary.ID) {
			owned = append(owned, summary)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"windows": owned})
}

func (s *Server) handleCloseWindow(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	store := storeFrom(r.Context())
	windowID := store.WindowID()
	s.sessions.removeWindow(sess, windowID)
	if err := s.closeWindow(windowID); err != nil {
		s.fail(w, r, "http window close failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetTabs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view(storeFrom(r.Context())))
}

func (s *Server) handleAddTab(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	var payload struct {
		Type  string `json:"type"`
		Title string `json:"title"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http tab add decode failed", fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
		return
	}
	tabType, err := schema.ParseTabType(payload.Type)
	if err != nil {
		s.fail(w, r, "http tab add failed", err)
		return
	}
	id := store.AddTab(tabType, schema.NormalizeTitle(tabType, payload.Title))
	writeJSON(w, http.StatusCreated, map[string]any{"tab_id": id, "view": s.view(store)})
}

func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	if err := store.CloseTab(tabParam(r)); err != nil {
		s.fail(w, r, "http tab close failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	if err := store.SetActiveTab(tabParam(r)); err != nil {
		s.fail(w, r, "http tab activate failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	var payload struct {
		Index *int `json:"index"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil || payload.Index == nil {
		s.fail(w, r, "http tab move decode failed", fmt.Errorf("%w: index is required", schema.ErrInvalidRequest))
		return
	}
	if err := store.MoveTab(tabParam(r), *payload.Index); err != nil {
		s.fail(w, r, "http tab move failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

func (s *Server) handleSetOrder(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	var payload struct {
		IDs []schema.TabID `json:"ids"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http tab order decode failed", fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
		return
	}
	order, err := resolveOrder(store.Tabs(), payload.IDs)
	if err != nil {
		s.fail(w, r, "http tab order failed", err)
		return
	}
	if err := store.SetTabOrder(order); err != nil {
		s.fail(w, r, "http tab order failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

// resolveOrder maps ids to the store's own tab records.
func resolveOrder(current []schema.Tab, ids []schema.TabID) ([]schema.Tab, error) {
	byID := make(map[schema.TabID]schema.Tab, len(current))
	for _, tab := range current {
		byID[tab.ID] = tab
	}
	order := make([]schema.Tab, 0, len(ids))
	for _, id := range ids {
		tab, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: unknown tab %s", schema.ErrOrderMismatch, id)
		}
		order = append(order, tab)
	}
	return order, nil
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	if g := s.lookupGesture(store.WindowID()); g != nil && g.Phase() == dnd.Considering {
		_ = g.Cancel()
	}
	store.Reset()
	writeJSON(w, http.StatusOK, s.view(store))
}

// dragRequest names the tab a drag call belongs to. Calls for a tab other
// than the one being dragged are rejected.
type dragRequest struct {
	TabID schema.TabID   `json:"tab_id"`
	Index *int           `json:"index,omitempty"`
	Order []schema.TabID `json:"order,omitempty"`
	Valid *bool          `json:"valid,omitempty"`
}

func decodeDragRequest(r *http.Request) (dragRequest, error) {
	var payload dragRequest
	if r.ContentLength == 0 {
		return payload, nil
	}
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		return payload, fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err)
	}
	return payload, nil
}

// draggedGesture returns the window's gesture when it is dragging tabID.
// An empty tabID matches any running drag.
func (s *Server) draggedGesture(store *core.Store, tabID schema.TabID) (*dnd.Gesture, error) {
	g, err := s.gesture(store)
	if err != nil {
		return nil, err
	}
	drag := g.DragState()
	if !drag.IsDragging {
		return nil, schema.ErrNoDrag
	}
	if tabID != "" && drag.DraggedTabID != tabID {
		return nil, fmt.Errorf("%w: dragging %s, not %s", schema.ErrNoDrag, drag.DraggedTabID, tabID)
	}
	return g, nil
}

func (s *Server) handleDragStart(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	payload, err := decodeDragRequest(r)
	if err != nil {
		s.fail(w, r, "http drag start decode failed", err)
		return
	}
	g, err := s.gesture(store)
	if err != nil {
		s.fail(w, r, "http drag start failed", err)
		return
	}
	// A browser runs one drag at a time; a drag still open here lost its end.
	if stale := g.DragState(); stale.IsDragging {
		if err := g.Cancel(); err == nil {
			pslog.Ctx(r.Context()).Info("http drag superseded", "stale_tab", stale.DraggedTabID, "tab", payload.TabID)
		}
	}
	if err := g.Start(payload.TabID); err != nil {
		s.fail(w, r, "http drag start failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

func (s *Server) handleDragOver(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	payload, err := decodeDragRequest(r)
	if err != nil {
		s.fail(w, r, "http drag over decode failed", err)
		return
	}
	g, err := s.draggedGesture(store, payload.TabID)
	if err != nil {
		s.fail(w, r, "http drag over failed", err)
		return
	}
	if payload.Valid != nil {
		if err := g.SetDropZone(*payload.Valid); err != nil {
			s.fail(w, r, "http drag over failed", err)
			return
		}
	}
	switch {
	case payload.Order != nil:
		order, err := resolveOrder(g.DisplayOrder(), payload.Order)
		if err == nil {
			err = g.ConsiderOrder(order)
		}
		if err != nil {
			s.fail(w, r, "http drag over failed", err)
			return
		}
	case payload.Index != nil:
		if err := g.Consider(*payload.Index); err != nil {
			s.fail(w, r, "http drag over failed", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

func (s *Server) handleDragDrop(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	payload, err := decodeDragRequest(r)
	if err != nil {
		s.fail(w, r, "http drag drop decode failed", err)
		return
	}
	g, err := s.draggedGesture(store, payload.TabID)
	if err == nil {
		err = g.Drop()
	}
	if err != nil {
		s.fail(w, r, "http drag drop failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

func (s *Server) handleDragCancel(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	payload, err := decodeDragRequest(r)
	if err != nil {
		s.fail(w, r, "http drag cancel decode failed", err)
		return
	}
	g, err := s.draggedGesture(store, payload.TabID)
	if err == nil {
		err = g.Cancel()
	}
	if err != nil {
		s.fail(w, r, "http drag cancel failed", err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(store))
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	tabID := tabParam(r)
	tab, ok := store.TabByID(tabID)
	if !ok {
		s.fail(w, r, "http transfer failed", fmt.Errorf("%w: %s", schema.ErrTabNotFound, tabID))
		return
	}
	raw, err := transfer.Encode(tab, store.WindowID())
	if err != nil {
		s.fail(w, r, "http transfer failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mime_type": transfer.MIMEType, "data": string(raw)})
}

// handleDrop creates the dropped tab in this window. With ?effect=move the
// origin tab is closed afterwards, but only once the copy exists and only when
// the origin window belongs to the same session.
func (s *Server) handleDrop(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	effect := schema.DropEffectCopy
	if param := r.URL.Query().Get("effect"); param != "" {
		parsed, err := schema.ParseDropEffect(param)
		if err == nil && parsed == schema.DropEffectNone {
			err = fmt.Errorf("%w: drop effect none", schema.ErrInvalidRequest)
		}
		if err != nil {
			s.fail(w, r, "http drop failed", err)
			return
		}
		effect = parsed
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, transfer.MaxPayloadBytes+1))
	if err != nil {
		s.fail(w, r, "http drop read failed", fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
		return
	}
	result, err := transfer.Receive(r.Context(), store, raw)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"accepted":      false,
			"drop_effect":   schema.DropEffectNone,
			"source_closed": false,
			"reason":        err.Error(),
		})
		return
	}
	result.DropEffect = schema.DropEffectCopy
	sourceClosed := false
	if effect == schema.DropEffectMove {
		sourceClosed = s.closeDropSource(r, result)
		if sourceClosed {
			result.DropEffect = schema.DropEffectMove
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accepted":      true,
		"drop_effect":   result.DropEffect,
		"source_closed": sourceClosed,
		"result":        result,
		"view":          s.view(store),
	})
}

func (s *Server) closeDropSource(r *http.Request, result transfer.Result) bool {
	log := pslog.Ctx(r.Context()).With("source_window", result.SourceWindowID, "source_tab", result.SourceTabID)
	if result.SourceWindowID == "" || !s.sessions.owns(sessionFrom(r.Context()), result.SourceWindowID) {
		log.Debug("http drop source kept", "reason", "source window not owned by session")
		return false
	}
	source, err := s.registry.Get(result.SourceWindowID)
	if err != nil {
		log.Debug("http drop source kept", "err", err)
		return false
	}
	if g := s.lookupGesture(result.SourceWindowID); g != nil && g.DragState().DraggedTabID == result.SourceTabID {
		_ = g.Cancel()
	}
	closed, err := transfer.DragEnd(r.Context(), source, result.SourceTabID, schema.DropEffectMove)
	if err != nil {
		log.Warn("http drop source close failed", "err", err)
		return false
	}
	return closed
}

func (s *Server) handleDragEnd(w http.ResponseWriter, r *http.Request) {
	store := storeFrom(r.Context())
	var payload struct {
		DropEffect string `json:"drop_effect"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		s.fail(w, r, "http drag end decode failed", fmt.Errorf("%w: %v", schema.ErrInvalidRequest, err))
		return
	}
	effect, err := schema.ParseDropEffect(payload.DropEffect)
	if err != nil {
		s.fail(w, r, "http drag end failed", err)
		return
	}
	closed, err := transfer.DragEnd(r.Context(), store, tabParam(r), effect)
	if err != nil {
		s.fail(w, r, "http drag end failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed": closed, "view": s.view(store)})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	store := storeFrom(r.Context())
	windowID := store.WindowID()
	log := logx.WithWindow(r.Context(), windowID)
	sess := sessionFrom(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.hub.Subscribe(windowID)
	defer unsubscribe()

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	view := s.view(store)
	_ = writeSSEvent(w, StreamEvent{
		Type:      "snapshot",
		WindowID:  windowID,
		Version:   store.Version(),
		View:      &view,
		Timestamp: time.Now(),
	})
	flusher.Flush()

	replayCount := 0
	if lastID > 0 {
		replay := s.hub.Replay(windowID, lastID)
		replayCount = len(replay)
		for _, event := range replay {
			_ = writeSSEvent(w, event)
		}
		flusher.Flush()
	}

	log.Info("http stream opened", "last_id", lastID, "replay", replayCount, "tabs", len(view.Tabs))
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case <-sess.ctx.Done():
			log.Info("http stream closed", "reason", "session ended")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if event.Seq > 0 && event.Seq <= lastID {
				continue
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
			if event.Type == "closed" {
				log.Info("http stream closed", "reason", "window closed")
				return
			}
		}
	}
}

func (s *Server) view(store *core.Store) schema.WindowView {
	g := s.lookupGesture(store.WindowID())
	if g == nil {
		state := store.State()
		return schema.BuildWindowView(state, state.Tabs, schema.DragState{}, s.zone(store.WindowID()))
	}
	return schema.BuildWindowView(store.State(), g.DisplayOrder(), g.DragState(), s.zone(store.WindowID()))
}

func (s *Server) zone(windowID schema.WindowID) schema.DndZoneConfig {
	return schema.DefaultDndZoneConfig(windowID, s.cfg.FlipDurationMs)
}

func (s *Server) lookupGesture(windowID schema.WindowID) *dnd.Gesture {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gestures[windowID]
}

// gesture returns the drag gesture of an open window, creating it on first
// use. Closed windows get none.
func (s *Server) gesture(store *core.Store) (*dnd.Gesture, error) {
	windowID := store.WindowID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if g := s.gestures[windowID]; g != nil {
		return g, nil
	}
	if _, err := s.registry.Get(windowID); err != nil {
		return nil, err
	}
	g := dnd.New(store,
		dnd.WithLogger(logx.WithWindow(context.Background(), windowID)),
		dnd.WithObserver(func(snap dnd.Snapshot) {
			order := snap.Preview
			if snap.Phase != dnd.Considering {
				order = store.Tabs()
			}
			view := schema.BuildWindowView(store.State(), order, snap.Drag, s.zone(windowID))
			outcome := ""
			if snap.Phase == dnd.Idle {
				outcome = snap.Outcome.String()
			}
			s.hub.OnPreview(view, snap.Phase.String(), outcome)
		}),
	)
	s.gestures[windowID] = g
	return g, nil
}

// closeWindow closes the registry window before forgetting its gesture, so a
// concurrent gesture lookup either sees the window closed or has its gesture
// removed here.
func (s *Server) closeWindow(windowID schema.WindowID) error {
	if g := s.lookupGesture(windowID); g != nil && g.Phase() == dnd.Considering {
		_ = g.Cancel()
	}
	err := s.registry.Close(windowID)
	s.mu.Lock()
	delete(s.gestures, windowID)
	s.mu.Unlock()
	return err
}

func (s *Server) closeSessionWindows(sess *session, windows []schema.WindowID) {
	for _, windowID := range windows {
		if err := s.closeWindow(windowID); err != nil && !errors.Is(err, schema.ErrWindowNotFound) {
			logx.Ctx(context.Background()).With("http_session", sess.id).Warn("http session window close failed", "window", windowID, "err", err)
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	log := pslog.Ctx(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(msg, "err", err)
	} else {
		log.Debug(msg, "err", err, "status", status)
	}
	writeError(w, status, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, schema.ErrTabNotFound), errors.Is(err, schema.ErrWindowNotFound):
		return http.StatusNotFound
	case errors.Is(err, schema.ErrOrderMismatch), errors.Is(err, schema.ErrDragInProgress),
		errors.Is(err, schema.ErrNoDrag), errors.Is(err, schema.ErrSameWindow):
		return http.StatusConflict
	case errors.Is(err, schema.ErrIndexOutOfRange), errors.Is(err, schema.ErrInvalidRequest),
		errors.Is(err, schema.ErrUnknownTabType), errors.Is(err, schema.ErrInvalidTransfer):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type contextKey int

const (
	sessionKey contextKey = iota
	storeKey
)

// withSession attaches the browser session, creating one when the request
// carries no valid cookie.
func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logx.Ctx(r.Context()).With("remote", clientIP(r))
		token := s.sessionToken(r)
		sess, ok := s.sessions.get(token)
		if token == "" || !ok {
			token, sess = s.sessions.create()
			http.SetCookie(w, &http.Cookie{
				Name:     s.cfg.SessionCookie,
				Value:    token,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		log = logx.WithSession(log, sess.id)
		ctx := pslog.ContextWithLogger(r.Context(), log)
		ctx = context.WithValue(ctx, sessionKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withWindow resolves {window} to a store owned by the session.
func (s *Server) withWindow(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		windowID := schema.WindowID(chi.URLParam(r, "window"))
		sess := sessionFrom(r.Context())
		err := schema.ValidateWindowID(windowID)
		if err == nil && !s.sessions.owns(sess, windowID) {
			err = fmt.Errorf("%w: %s", schema.ErrWindowNotFound, windowID)
		}
		var store *core.Store
		if err == nil {
			store, err = s.registry.Get(windowID)
		}
		if err != nil {
			s.fail(w, r, "http window lookup failed", err)
			return
		}
		log := logx.WithWindow(r.Context(), windowID)
		ctx := logx.ContextWithWindowLogger(r.Context(), log, windowID)
		ctx = context.WithValue(ctx, storeKey, store)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *session {
	sess, _ := ctx.Value(sessionKey).(*session)
	return sess
}

func storeFrom(ctx context.Context) *core.Store {
	store, _ := ctx.Value(storeKey).(*core.Store)
	return store
}

func tabParam(r *http.Request) schema.TabID {
	return schema.TabID(chi.URLParam(r, "tab"))
}

func (s *Server) sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(s.cfg.SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *Server) lookupSession(r *http.Request) string {
	if s == nil || r == nil {
		return ""
	}
	token := s.sessionToken(r)
	if token == "" {
		return ""
	}
	s.sessions.mu.Lock()
	defer s.sessions.mu.Unlock()
	if entry, ok := s.sessions.items[token]; ok {
		return entry.id
	}
	return ""
}

func decodeJSON(body io.Reader, target any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", event.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
