package tabstrip

import (
	"context"
	"errors"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip/core"
	"pkt.systems/tabstrip/httpapi"
	"pkt.systems/tabstrip/internal/eventbus"
	"pkt.systems/tabstrip/schema"
	"pkt.systems/tabstrip/sshserver"
)

// Server composes the HTTP and SSH front-ends over one window registry.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerConfig configures the compositor.
type ServerConfig struct {
	HTTP httpapi.Config
	SSH  sshserver.Config
	// SessionSweepInterval is how often idle browser sessions are expired.
	SessionSweepInterval time.Duration
}

// ServerDeps captures dependencies required to build the server.
type ServerDeps struct {
	Logger    pslog.Logger
	NewID     func() schema.TabID
	EventSink core.EventSink
}

// ServerOption toggles compositor components.
type ServerOption func(*serverOptions)

type serverOptions struct {
	enableHTTP bool
	enableSSH  bool
}

// WithHTTP enables the HTTP API/UI server.
func WithHTTP() ServerOption {
	return func(o *serverOptions) { o.enableHTTP = true }
}

// WithSSH enables the SSH server.
func WithSSH() ServerOption {
	return func(o *serverOptions) { o.enableSSH = true }
}

// New constructs a composable tabstrip server.
func New(cfg ServerConfig, deps ServerDeps, opts ...ServerOption) (Server, error) {
	options := serverOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if !options.enableHTTP && !options.enableSSH {
		return nil, errors.New("no services enabled")
	}

	var hub *httpapi.Hub
	var bus *eventbus.Bus
	sinks := make([]core.EventSink, 0, 3)
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	if options.enableHTTP {
		hub = httpapi.NewHub(cfg.HTTP.HubHistory, cfg.HTTP.FlipDurationMs)
		sinks = append(sinks, hub)
	}
	if options.enableSSH {
		bus = eventbus.New(deps.Logger)
		sinks = append(sinks, bus)
	}
	var sink core.EventSink = eventFanout{sinks: sinks}
	if len(sinks) == 1 {
		sink = sinks[0]
	}

	registry := core.NewRegistry(core.RegistryDeps{
		EventSink: sink,
		Logger:    deps.Logger,
		NewID:     deps.NewID,
	})

	server := &compositeServer{
		cfg:      cfg,
		options:  options,
		registry: registry,
	}
	if options.enableHTTP {
		server.httpSrv = httpapi.NewServer(cfg.HTTP, registry, hub)
	}
	if options.enableSSH {
		server.sshSrv = &sshserver.Server{
			Config:   cfg.SSH,
			Registry: registry,
			EventBus: bus,
		}
	}
	return server, nil
}

type compositeServer struct {
	cfg      ServerConfig
	options  serverOptions
	registry *core.Registry
	httpSrv  *httpapi.Server
	sshSrv   *sshserver.Server
	logger   pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	s.logger = pslog.Ctx(s.ctx)
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"http", s.options.enableHTTP,
		"ssh", s.options.enableSSH,
		"http_addr", s.cfg.HTTP.Addr,
		"http_base_url", s.cfg.HTTP.BaseURL,
		"http_base_path", s.cfg.HTTP.BasePath,
		"ssh_addr", s.cfg.SSH.Addr,
	)
	if s.httpSrv != nil {
		s.httpSrv.SetBaseContext(s.ctx)
		go s.httpSrv.SweepSessions(s.ctx, s.cfg.SessionSweepInterval)
		go func() {
			if err := httpapi.ListenAndServe(s.ctx, s.cfg.HTTP.Addr, s.httpSrv.Handler()); err != nil {
				log.Error("http server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	if s.sshSrv != nil {
		go func() {
			if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
				log.Error("ssh server failed", "err", err)
				s.errCh <- err
			}
		}()
	}
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

// Stop closes every open window, so connected clients see a closed event,
// and then cancels the front-ends.
func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	serverCtx := s.ctx
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if s.registry != nil {
		closed := 0
		for _, summary := range s.registry.List() {
			if err := s.registry.Close(summary.ID); err != nil {
				log.Warn("server window close failed", "window", summary.ID, "err", err)
				continue
			}
			closed++
		}
		log.Info("server windows closed", "count", closed)
	}
	if cancel != nil {
		cancel()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-serverCtx.Done():
		log.Info("server stopped")
		return nil
	}
}
