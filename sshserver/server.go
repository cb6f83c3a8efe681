package sshserver

import (
	"context"
	"errors"
	"io"
	"net"

	gliderssh "github.com/gliderlabs/ssh"
	"golang.org/x/crypto/ssh"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/core"
	"pkt.systems/tabstrip/internal/eventbus"
	"pkt.systems/tabstrip/internal/logx"
	"pkt.systems/tabstrip/schema"
)

// Server exposes tab strip windows over SSH. Every session opens its own
// window in the shared registry and closes it on disconnect.
type Server struct {
	Config   Config
	Listener net.Listener
	Registry *core.Registry
	EventBus *eventbus.Bus
	logger   pslog.Logger
	keys     authorizedKeys
}

// ListenAndServe starts the SSH server and shuts down on context cancellation.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.logger == nil {
		s.logger = pslog.Ctx(ctx)
	}
	if s.Registry == nil {
		return errors.New("window registry is required for SSH")
	}

	signer, err := EnsureHostKey(s.Config.HostKeyPath)
	if err != nil {
		return err
	}

	server := &gliderssh.Server{
		Addr:    s.Config.Addr,
		Handler: s.handleSession,
	}
	if s.Config.AuthorizedKeysPath != "" {
		keys, err := loadAuthorizedKeys(s.Config.AuthorizedKeysPath)
		if err != nil {
			return err
		}
		s.keys = keys
		server.PublicKeyHandler = s.handlePublicKey
		s.logger.Info("ssh authorized keys loaded", "keys", len(keys))
	} else {
		s.logger.Warn("ssh accepting unauthenticated sessions", "reason", "no authorized keys configured")
	}
	server.AddHostKey(signer)

	errCh := make(chan error, 1)
	go func() {
		if s.Listener != nil {
			s.logger.Info("ssh listening", "addr", s.Listener.Addr().String())
			errCh <- server.Serve(s.Listener)
			return
		}
		s.logger.Info("ssh listening", "addr", s.Config.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = server.Close()
		return nil
	case err := <-errCh:
		if errors.Is(err, gliderssh.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (s *Server) handlePublicKey(ctx gliderssh.Context, key gliderssh.PublicKey) bool {
	log := s.logger.With("user", ctx.User(), "remote", remoteAddr(ctx), "fingerprint", ssh.FingerprintSHA256(key))
	comment, ok := s.keys.match(key)
	if !ok {
		log.Warn("ssh pubkey rejected", "reason", "no matching key")
		return false
	}
	log.Info("ssh pubkey accepted", "key", comment)
	return true
}

func remoteAddr(ctx gliderssh.Context) string {
	if ctx == nil || ctx.RemoteAddr() == nil {
		return ""
	}
	return ctx.RemoteAddr().String()
}

func (s *Server) handleSession(sess gliderssh.Session) {
	log := s.logger.With("user", sess.User(), "remote", sess.RemoteAddr().String())
	if sshSession := sess.Context().SessionID(); sshSession != "" {
		log = log.With("ssh_session", sshSession)
	}

	pty, winCh, ok := sess.Pty()
	if !ok {
		log.Info("ssh session rejected", "reason", "pty required")
		_, _ = io.WriteString(sess, "pty required\n")
		_ = sess.Exit(1)
		return
	}

	ctx := pslog.ContextWithLogger(sess.Context(), log)
	store := s.Registry.Open(ctx)
	windowID := store.WindowID()
	log = logx.WithWindow(ctx, windowID)
	ctx = logx.ContextWithWindowLogger(ctx, log, windowID)
	defer func() {
		if err := s.Registry.Close(windowID); err != nil && !errors.Is(err, schema.ErrWindowNotFound) {
			log.Warn("ssh window close failed", "err", err)
		}
	}()

	log.Info("ssh session opened", "term", pty.Term)
	events, unsubscribe := s.EventBus.Subscribe(windowID)
	defer unsubscribe()

	theme, _ := schema.NormalizeThemeName(s.Config.Theme)
	ui := newTerminalSession(ctx, sess, terminalOptions{
		Registry:       s.Registry,
		Store:          store,
		Events:         events,
		Theme:          theme,
		FlipDurationMs: s.Config.FlipDurationMs,
		Prompt:         s.Config.Prompt,
	})
	ui.SetSize(pty.Window.Width, pty.Window.Height)
	_ = ui.Run(winCh)
	log.Info("ssh session closed", "term", pty.Term)
}
