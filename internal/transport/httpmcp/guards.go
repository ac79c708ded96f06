package httpmcp

import (
	"net/http"

	"github.com/rs/cors"

	"postgres-ssh-mcp/internal/core"
)

// buildCORS wraps next with the CORS layer the guards and OAuth
// middleware sit behind. It exposes mcp-session-id to the browser and
// preflights the exact header set the bridge's clients send, following
// the teacher's wrapCORS shape but with the literal header list this
// spec names instead of ConnectRPC's helper constants.
func buildCORS(cfg Config, next http.Handler) http.Handler {
	origins := cfg.AllowedOrigins
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}

	opts := cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "mcp-session-id", "Accept"},
		ExposedHeaders:   []string{"mcp-session-id"},
		AllowCredentials: true,
		MaxAge:           7200,
	}
	if allowAll {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
	}
	return cors.New(opts).Handler(next)
}

// originGuard rejects a non-matching Origin header per §4.8: empty or
// "*" accepts any origin; otherwise the normalised Origin must match one
// of the configured allow-list entries.
func originGuard(cfg Config, next http.Handler) http.Handler {
	allowAll := len(cfg.AllowedOrigins) == 0
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowAll || origin == "" || headerEquals(origin, cfg.AllowedOrigins) {
			next.ServeHTTP(w, r)
			return
		}
		writeRPCError(w, http.StatusForbidden, core.RPCCodeGeneric, "origin not allowed")
	})
}

// hostGuard defends against DNS rebinding: when allowedHosts is
// non-empty, the request's Host header must match one of them exactly.
func hostGuard(cfg Config, next http.Handler) http.Handler {
	if len(cfg.AllowedHosts) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if headerEquals(r.Host, cfg.AllowedHosts) {
			next.ServeHTTP(w, r)
			return
		}
		writeRPCError(w, http.StatusForbidden, core.RPCCodeGeneric, "host not allowed")
	})
}
