// Package stdio is the Stdio Transport (C7): it wires the Connection
// Manager and Tool Registry, retries Initialize in the background so the
// protocol listener is alive before the database is reachable, and
// serves the Agent Protocol over the process's standard input/output.
package stdio

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	"postgres-ssh-mcp/internal/config"
	"postgres-ssh-mcp/internal/mcpserver"
	"postgres-ssh-mcp/internal/obfuscate"
	"postgres-ssh-mcp/internal/tools"
	"postgres-ssh-mcp/internal/wiring"
)

// Run builds the tunnel (if configured), the Connection Manager, and the
// Tool Registry, then serves the protocol over stdio until a shutdown
// signal arrives or the transport itself ends.
func Run(ctx context.Context, cfg *config.Config, version string, log *slog.Logger) (err error) {
	if log == nil {
		log = slog.Default()
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("stdio transport panicked", "panic", r)
			err = nil
		}
	}()

	conn := wiring.BuildConnectionManager(cfg, log)
	reg := tools.NewRegistry(conn)
	srv := mcpserver.New(reg, version)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go wiring.RetryInitialize(runCtx, conn, log)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
		conn.Close(context.Background()) //nolint:errcheck // best-effort on shutdown
		os.Exit(0)
	}()

	if serveErr := server.ServeStdio(srv); serveErr != nil {
		log.Error("stdio transport ended", "error", obfuscate.Error(serveErr))
		cancel()
		conn.Close(context.Background()) //nolint:errcheck
		return serveErr
	}
	return nil
}
