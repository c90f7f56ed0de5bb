// Package main provides the lightweight MCP entry point for the diagnostic reasoning core.
// This version requires no external databases: it uses in-memory caching and SQLite.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/ddx-reasoning-core/internal/config"
	"github.com/ddx-reasoning-core/internal/mcp"
	"github.com/ddx-reasoning-core/internal/setup"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		cmd := setup.NewCommand()
		cmd.SetArgs(os.Args[2:])
		if err := cmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	cfg := config.LoadLiteConfig()
	logger := config.NewLogger(cfg.Logging())

	logger.WithFields(logrus.Fields{
		"transport": cfg.Transport,
		"data_dir":  cfg.DataDir,
		"snapshot":  cfg.KnowledgePath(),
	}).Info("Starting diagnostic reasoning MCP server (lite)")

	server, err := mcp.NewLiteServer(cfg, mcp.WithLogger(logger))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create MCP server")
	}
	defer server.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("MCP server failed")
		server.Close()
		os.Exit(1)
	}
	logger.Info("MCP server (lite) stopped")
}
