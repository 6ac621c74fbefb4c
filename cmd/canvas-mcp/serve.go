package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vishalsachdev/canvas-mcp-sub000/pkg/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MCP tool catalog (stdio by default, --http for streamable HTTP)",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg, logger, enablePlugins)
	if err != nil {
		return err
	}
	// The serve context is already cancelled during shutdown; teardown
	// gets a fresh one so telemetry can still flush.
	defer app.Close(context.Background())

	srv := server.New(app.deps, server.WithTracker(app.provider))

	addr := httpAddr
	if addr == "" {
		addr = cfg.HTTPAddr
	}
	if addr != "" {
		return srv.RunHTTP(ctx, addr)
	}
	return srv.RunStdio(ctx)
}
