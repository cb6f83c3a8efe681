package main

import (
	"context"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/tabstrip"
	"pkt.systems/tabstrip/httpapi"
	"pkt.systems/tabstrip/internal/appconfig"
	"pkt.systems/tabstrip/sshserver"
)

const stopTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var cfgPath string
	var noHTTP bool
	var noSSH bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the tabstrip HTTP and SSH servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			logger, closer := serveLogger(cfg.Logging, cmd.ErrOrStderr())
			defer func() { _ = closer.Close() }()
			ctx := pslog.ContextWithLogger(cmd.Context(), logger)

			opts := make([]tabstrip.ServerOption, 0, 2)
			if !noHTTP {
				opts = append(opts, tabstrip.WithHTTP())
			}
			if !noSSH {
				opts = append(opts, tabstrip.WithSSH())
			}
			serverCfg := toServerConfig(cfg)
			server, err := tabstrip.New(serverCfg, tabstrip.ServerDeps{Logger: logger}, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("tabstrip starting", "http", !noHTTP, "ssh", !noSSH, "theme", cfg.UI.Theme)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&noHTTP, "no-http", false, "disable the HTTP server")
	cmd.Flags().BoolVar(&noSSH, "no-ssh", false, "disable the SSH server")
	return cmd
}

func toServerConfig(cfg appconfig.Config) tabstrip.ServerConfig {
	return tabstrip.ServerConfig{
		HTTP:                 toHTTPConfig(cfg),
		SSH:                  toSSHConfig(cfg),
		SessionSweepInterval: time.Minute,
	}
}

func toHTTPConfig(cfg appconfig.Config) httpapi.Config {
	return httpapi.Config{
		Addr:            cfg.HTTP.Addr,
		SessionCookie:   cfg.HTTP.SessionCookie,
		SessionTTLHours: cfg.HTTP.SessionTTLHours,
		BaseURL:         cfg.HTTP.BaseURL,
		BasePath:        cfg.HTTP.BasePath,
		HubHistory:      cfg.HTTP.HubHistory,
		FlipDurationMs:  cfg.UI.FlipDurationMs,
		Theme:           cfg.UI.Theme,
	}
}

func toSSHConfig(cfg appconfig.Config) sshserver.Config {
	return sshserver.Config{
		Addr:               cfg.SSH.Addr,
		HostKeyPath:        cfg.SSH.HostKeyPath,
		AuthorizedKeysPath: strings.TrimSpace(cfg.SSH.AuthorizedKeys),
		Prompt:             "> ",
		Theme:              cfg.UI.Theme,
		FlipDurationMs:     cfg.UI.FlipDurationMs,
	}
}
