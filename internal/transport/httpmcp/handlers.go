package httpmcp

import (
	"encoding/json"
	"net/http"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/dbconn"
	"postgres-ssh-mcp/internal/obfuscate"
)

const sessionHeader = "mcp-session-id"

func healthHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "ok",
			"timestamp": nowRFC3339(),
			"version":   version,
		})
	}
}

func readyHandler(conn *dbconn.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := conn.HealthCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status":   "not_ready",
				"database": "disconnected",
				"error":    obfuscate.Error(err),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":   "ready",
			"database": "connected",
		})
	}
}

// oauthMetadataHandler serves the OAuth protected-resource metadata
// document at both /.well-known/oauth-protected-resource and
// /mcp/.well-known/oauth-protected-resource, only mounted when
// authMode=oauth.
func oauthMetadataHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]any{
			"resource":              resourceMetadataURL(r),
			"authorization_servers": []string{"https://" + cfg.Auth0Domain + "/"},
			"scopes_supported":      []string{"openid", "profile", "email"},
			"bearer_methods_supported": []string{"header"},
		}
		if cfg.ResourceDocumentationURL != "" {
			doc["resource_documentation"] = cfg.ResourceDocumentationURL
		}
		writeJSON(w, http.StatusOK, doc)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statelessMCPHandler serves stateless-mode /mcp: GET and DELETE return
// 405, and every POST is dispatched round-robin to the fixed-size pool.
func statelessMCPHandler(pool *statelessPool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeRPCError(w, http.StatusMethodNotAllowed, core.RPCCodeGeneric, "method not allowed in stateless mode")
			return
		}
		pool.acquire().ServeHTTP(w, r)
	}
}

// statefulMCPHandler serves stateful-mode /mcp: POST either bootstraps a
// new session (first request, no session header) or dispatches to an
// existing one; GET opens the session's SSE stream; DELETE terminates
// the session.
func statefulMCPHandler(store *sessionStore, reg factory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(sessionHeader)

		switch r.Method {
		case http.MethodPost:
			if id == "" {
				id = newSessionID()
				h := reg()
				store.put(id, h)
				w.Header().Set(sessionHeader, id)
				h.ServeHTTP(w, r)
				return
			}
			h, ok := store.touch(id)
			if !ok {
				writeRPCError(w, http.StatusNotFound, core.RPCCodeGeneric, "unknown session")
				return
			}
			h.ServeHTTP(w, r)

		case http.MethodGet:
			if id == "" {
				writeRPCError(w, http.StatusBadRequest, core.RPCCodeGeneric, "missing session id")
				return
			}
			h, ok := store.touch(id)
			if !ok {
				writeRPCError(w, http.StatusNotFound, core.RPCCodeGeneric, "unknown session")
				return
			}
			h.ServeHTTP(w, r)

		case http.MethodDelete:
			if id == "" {
				writeRPCError(w, http.StatusBadRequest, core.RPCCodeGeneric, "missing session id")
				return
			}
			if !store.remove(id) {
				writeRPCError(w, http.StatusNotFound, core.RPCCodeGeneric, "unknown session")
				return
			}
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "GET, POST, DELETE")
			writeRPCError(w, http.StatusMethodNotAllowed, core.RPCCodeGeneric, "method not allowed")
		}
	}
}

// factory builds one fresh streamable-HTTP handler (backed by its own
// MCPServer instance) for a new stateful session.
type factory func() http.Handler
