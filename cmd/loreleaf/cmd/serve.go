package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loreleaf/loreleaf/internal/config"
	"github.com/loreleaf/loreleaf/internal/httpapi"
	"github.com/loreleaf/loreleaf/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var (
		httpAddr string
		mcpMode  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search over HTTP or MCP stdio",
		Long: `Serve the search engine.

By default an HTTP API listens on the configured address with
/v1/search, /healthz, /readyz and /metrics endpoints. With --mcp the
process instead speaks the Model Context Protocol on stdin/stdout for
editor and agent integration.

The project config file is watched while serving; fusion and rerank
settings apply to new requests without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, !mcpMode)
			if err != nil {
				return err
			}
			defer a.close()

			watcher, err := config.NewWatcher(a.root, func(cfg *config.Config) {
				a.engine.UpdateConfig(cfg)
			}, a.logger)
			if err != nil {
				a.logger.Warn("config watcher unavailable", "error", err)
			} else {
				// The watch loop blocks until shutdown.
				go func() { _ = watcher.Start(ctx) }()
				defer func() { _ = watcher.Stop() }()
			}

			if mcpMode {
				return serveMCP(ctx, a)
			}
			if httpAddr == "" {
				httpAddr = a.cfg.Server.HTTPAddr
			}
			return serveHTTP(ctx, a, httpAddr)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http", "", "HTTP listen address (default from config)")
	cmd.Flags().BoolVar(&mcpMode, "mcp", false, "serve MCP over stdio instead of HTTP")
	return cmd
}

func serveHTTP(ctx context.Context, a *app, addr string) error {
	if addr == "" {
		return fmt.Errorf("no HTTP listen address configured")
	}

	srv, err := httpapi.NewServer(httpapi.Deps{
		Engine:   a.engine,
		Cache:    a.cache,
		Metrics:  a.metrics,
		Registry: a.registry,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Info("serving HTTP", "addr", addr)
	return srv.Start(ctx, addr)
}

func serveMCP(ctx context.Context, a *app) error {
	srv, err := mcp.NewServer(a.engine, a.stores.Passages, a.logger)
	if err != nil {
		return err
	}

	a.logger.Info("serving MCP", "transport", a.cfg.Server.Transport)
	return srv.Serve(ctx, a.cfg.Server.Transport)
}
