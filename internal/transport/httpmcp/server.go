package httpmcp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"postgres-ssh-mcp/internal/dbconn"
	"postgres-ssh-mcp/internal/tools"
)

func newSessionID() string { return uuid.New().String() }

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }

// Handler is the HTTP Transport's top-level http.Handler plus a Close
// method that stops the stateful sweeper (stateless mode has nothing to
// sweep).
type Handler struct {
	http.Handler
	stopSweeper context.CancelFunc
}

// Close stops the background session sweeper, if one is running.
func (h *Handler) Close() error {
	if h.stopSweeper != nil {
		h.stopSweeper()
	}
	return nil
}

// NewHandler assembles the full HTTP Transport: CORS, origin/host
// guards, the optional OAuth gate in front of /mcp only, health/ready/
// oauth-metadata endpoints, and /mcp dispatched per cfg.Stateless. conn
// must already be wired (tunnel + pool construction happens via
// internal/wiring before this is called); conn.Initialize is the
// caller's responsibility.
func NewHandler(ctx context.Context, cfg Config, conn *dbconn.Manager, reg *tools.Registry, version string, log *slog.Logger) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "httpmcp")

	buildOne := func() http.Handler { return newStreamableHandler(mcpServerFor(reg, version)) }

	var mcpHandler http.Handler
	stopSweeper := func() {}

	if cfg.Stateless {
		pool := newStatelessPool(cfg.ServerPoolSize, buildOne)
		mcpHandler = statelessMCPHandler(pool)
	} else {
		store := newSessionStore(cfg.SessionTTL)
		mcpHandler = statefulMCPHandler(store, buildOne)

		sweepCtx, cancel := context.WithCancel(ctx)
		stopSweeper = cancel
		go runSweeper(sweepCtx, store, cfg.SessionCleanupInterval, log)
	}

	if cfg.AuthMode == "oauth" {
		verifier, err := newOAuthVerifier(ctx, cfg.Auth0Domain, cfg.Auth0Audience)
		if err != nil {
			stopSweeper()
			return nil, fmt.Errorf("httpmcp: %w", err)
		}
		mcpHandler = oauthMiddleware(verifier, mcpHandler)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler(version))
	mux.HandleFunc("/health/ready", readyHandler(conn))
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/mcp", mcpHandler)
	if cfg.AuthMode == "oauth" {
		metaHandler := oauthMetadataHandler(cfg)
		mux.HandleFunc("/.well-known/oauth-protected-resource", metaHandler)
		mux.HandleFunc("/mcp/.well-known/oauth-protected-resource", metaHandler)
	}

	var top http.Handler = mux
	top = hostGuard(cfg, top)
	top = originGuard(cfg, top)
	top = buildCORS(cfg, top)

	return &Handler{Handler: top, stopSweeper: stopSweeper}, nil
}

func runSweeper(ctx context.Context, store *sessionStore, interval time.Duration, log *slog.Logger) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := store.reapStale(); n > 0 {
				log.Info("reaped stale sessions", "count", n)
			}
		}
	}
}
