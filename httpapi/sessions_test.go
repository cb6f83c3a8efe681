package httpapi

import (
	"context"
	"testing"
	"time"

	"pkt.systems/tabstrip/schema"
)

type sessionTestKey struct{}

func TestSessionStoreCreateGetDelete(t *testing.T) {
	store := newSessionStore(time.Hour)
	token, sess := store.create()
	if token == "" || sess.id == "" {
		t.Fatalf("expected token and session id")
	}
	if sess.ctx == nil {
		t.Fatalf("expected session context")
	}
	if _, ok := store.get(token); !ok {
		t.Fatalf("expected session to be found")
	}
	store.delete(token)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected session to be deleted")
	}
	select {
	case <-sess.ctx.Done():
	default:
		t.Fatalf("expected session context to be canceled")
	}
}

func TestSessionStoreExpiration(t *testing.T) {
	store := newSessionStore(5 * time.Millisecond)
	var closed []schema.WindowID
	store.onClose = func(_ *session, windows []schema.WindowID) {
		closed = append(closed, windows...)
	}
	token, sess := store.create()
	store.addWindow(sess, "w1")
	time.Sleep(15 * time.Millisecond)
	if _, ok := store.get(token); ok {
		t.Fatalf("expected session to expire")
	}
	if len(closed) != 1 || closed[0] != "w1" {
		t.Fatalf("expected owned window to be closed, got %v", closed)
	}
	select {
	case <-sess.ctx.Done():
	default:
		t.Fatalf("expected session context to be canceled")
	}
}

func TestSessionStoreSweep(t *testing.T) {
	store := newSessionStore(time.Hour)
	_, keep := store.create()
	expiredToken, gone := store.create()
	store.mu.Lock()
	store.items[expiredToken].expiresAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	if n := store.sweep(time.Now()); n != 1 {
		t.Fatalf("expected one session swept, got %d", n)
	}
	select {
	case <-gone.ctx.Done():
	default:
		t.Fatalf("expected swept session context to be canceled")
	}
	if keep.ctx.Err() != nil {
		t.Fatalf("expected live session to survive the sweep")
	}
}

func TestSessionStoreWindowOwnership(t *testing.T) {
	store := newSessionStore(time.Hour)
	_, a := store.create()
	_, b := store.create()
	store.addWindow(a, "w1")
	if !store.owns(a, "w1") {
		t.Fatalf("expected session a to own w1")
	}
	if store.owns(b, "w1") {
		t.Fatalf("expected session b not to own w1")
	}
	if !store.removeWindow(a, "w1") {
		t.Fatalf("expected removal to report ownership")
	}
	if store.removeWindow(a, "w1") {
		t.Fatalf("expected second removal to be a no-op")
	}
}

func TestSessionStoreBaseContext(t *testing.T) {
	store := newSessionStore(time.Hour)
	base, cancel := context.WithCancel(context.WithValue(context.Background(), sessionTestKey{}, "base"))
	store.setBaseContext(base)
	_, sess := store.create()
	if got := sess.ctx.Value(sessionTestKey{}); got != "base" {
		t.Fatalf("expected session context to inherit base value, got %v", got)
	}
	cancel()
	select {
	case <-sess.ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("expected session context to follow the base context")
	}
}
