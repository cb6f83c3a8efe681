package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"pkt.systems/tabstrip/internal/logx"
	"pkt.systems/tabstrip/schema"
)

// session is one browser. It owns the windows opened through it.
type session struct {
	id        string
	expiresAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	windows   map[schema.WindowID]struct{}
}

type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	baseCtx context.Context
	items   map[string]*session
	onClose func(sess *session, windows []schema.WindowID)
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{
		ttl:     ttl,
		baseCtx: context.TODO(),
		items:   make(map[string]*session),
	}
}

func (s *sessionStore) create() (string, *session) {
	token := randomToken(32)
	s.mu.Lock()
	parent := s.baseCtx
	ctx, cancel := context.WithCancel(parent)
	entry := &session{
		id:        randomToken(12),
		expiresAt: time.Now().Add(s.ttl),
		ctx:       ctx,
		cancel:    cancel,
		windows:   make(map[schema.WindowID]struct{}),
	}
	s.items[token] = entry
	s.mu.Unlock()
	logx.Ctx(context.Background()).With("http_session", entry.id).Info("session created", "expires", entry.expiresAt.Format(time.RFC3339))
	return token, entry
}

func (s *sessionStore) get(token string) (*session, bool) {
	s.mu.Lock()
	entry, ok := s.items[token]
	if !ok {
		s.mu.Unlock()
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.items, token)
		windows := windowList(entry)
		s.mu.Unlock()
		logx.Ctx(context.Background()).With("http_session", entry.id).Info("session expired", "windows", len(windows))
		s.closeSession(entry, windows)
		return nil, false
	}
	entry.expiresAt = time.Now().Add(s.ttl)
	s.mu.Unlock()
	return entry, true
}

func (s *sessionStore) delete(token string) {
	s.mu.Lock()
	entry, ok := s.items[token]
	var windows []schema.WindowID
	if ok {
		delete(s.items, token)
		windows = windowList(entry)
	}
	s.mu.Unlock()
	if ok {
		logx.Ctx(context.Background()).With("http_session", entry.id).Info("session deleted", "windows", len(windows))
		s.closeSession(entry, windows)
	}
}

// sweep removes every expired session and returns how many were removed.
func (s *sessionStore) sweep(now time.Time) int {
	type expired struct {
		entry   *session
		windows []schema.WindowID
	}
	var victims []expired
	s.mu.Lock()
	for token, entry := range s.items {
		if now.After(entry.expiresAt) {
			delete(s.items, token)
			victims = append(victims, expired{entry: entry, windows: windowList(entry)})
		}
	}
	s.mu.Unlock()
	for _, victim := range victims {
		logx.Ctx(context.Background()).With("http_session", victim.entry.id).Info("session expired", "windows", len(victim.windows))
		s.closeSession(victim.entry, victim.windows)
	}
	return len(victims)
}

func (s *sessionStore) addWindow(sess *session, windowID schema.WindowID) {
	s.mu.Lock()
	sess.windows[windowID] = struct{}{}
	s.mu.Unlock()
}

func (s *sessionStore) removeWindow(sess *session, windowID schema.WindowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := sess.windows[windowID]; !ok {
		return false
	}
	delete(sess.windows, windowID)
	return true
}

func (s *sessionStore) owns(sess *session, windowID schema.WindowID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := sess.windows[windowID]
	return ok
}

func (s *sessionStore) setBaseContext(ctx context.Context) {
	if ctx == nil {
		return
	}
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
}

func (s *sessionStore) closeSession(entry *session, windows []schema.WindowID) {
	if entry.cancel != nil {
		entry.cancel()
	}
	if s.onClose != nil && len(windows) > 0 {
		s.onClose(entry, windows)
	}
}

func windowList(entry *session) []schema.WindowID {
	out := make([]schema.WindowID, 0, len(entry.windows))
	for id := range entry.windows {
		out = append(out, id)
	}
	return out
}

func randomToken(size int) string {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
