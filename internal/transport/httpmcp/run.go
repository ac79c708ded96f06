package httpmcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"postgres-ssh-mcp/internal/config"
	"postgres-ssh-mcp/internal/tools"
	"postgres-ssh-mcp/internal/wiring"
)

// Run builds the Connection Manager, the Tool Registry, and the full
// HTTP Transport handler, then serves it on cfg.MCPHost:cfg.Port until a
// shutdown signal arrives. Initialize is retried in the background the
// same way the stdio transport does, so the listener (and therefore
// /health) is up before the database is reachable.
func Run(ctx context.Context, cfg *config.Config, version string, log *slog.Logger) error {
	if log == nil {
		log = slog.Default()
	}

	conn := wiring.BuildConnectionManager(cfg, log)
	reg := tools.NewRegistry(conn)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go wiring.RetryInitialize(runCtx, conn, log)

	handler, err := NewHandler(runCtx, configFrom(cfg), conn, reg, version, log)
	if err != nil {
		return fmt.Errorf("httpmcp: build handler: %w", err)
	}
	defer handler.Close() //nolint:errcheck

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.MCPHost, cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		MaxHeaderBytes:    8 * 1024,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("received shutdown signal")
		cancel()
		handler.Close() //nolint:errcheck
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			httpSrv.Close() //nolint:errcheck
		}
		conn.Close(context.Background()) //nolint:errcheck
	}()

	log.Info("serving MCP over HTTP", "addr", httpSrv.Addr, "stateless", cfg.MCPStateless)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http serve: %w", err)
	}
	return nil
}
