// Command postgres-ssh-mcp bridges the Agent Protocol to a PostgreSQL
// database, optionally reached through an SSH bastion tunnel, enforcing
// read-only SQL validation, row caps, and a bounded query concurrency
// gate. MCP_TRANSPORT selects stdio (default) or HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"postgres-ssh-mcp/internal/config"
	"postgres-ssh-mcp/internal/transport/httpmcp"
	"postgres-ssh-mcp/internal/transport/stdio"
)

// version is injected at build time via -ldflags
// (e.g. -ldflags "-X main.version=v1.2.3").
var version = "devel"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log := slog.New(slog.NewTextHandler(os.Stderr, nil)).With("component", "main")

	switch cfg.Transport {
	case "http":
		return httpmcp.Run(ctx, cfg, version, log)
	default:
		return stdio.Run(ctx, cfg, version, log)
	}
}
