package httpmcp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"postgres-ssh-mcp/internal/dbconn"
)

func echoHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestStatelessMCPHandler_RejectsGetAndDelete(t *testing.T) {
	h := statelessMCPHandler(newStatelessPool(1, echoHandler))

	for _, method := range []string{http.MethodGet, http.MethodDelete} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(method, "/mcp", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s /mcp = %d, want 405", method, rec.Code)
		}
	}
}

func TestStatelessMCPHandler_DispatchesPost(t *testing.T) {
	h := statelessMCPHandler(newStatelessPool(1, echoHandler))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("POST /mcp = %d, want 200", rec.Code)
	}
}

func TestStatefulMCPHandler_FirstPostBootstrapsSession(t *testing.T) {
	store := newSessionStore(0)
	h := statefulMCPHandler(store, echoHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get(sessionHeader) == "" {
		t.Error("expected a session id header on the bootstrap response")
	}
}

func TestStatefulMCPHandler_UnknownSessionRejected(t *testing.T) {
	store := newSessionStore(0)
	h := statefulMCPHandler(store, echoHandler)

	req := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	req.Header.Set(sessionHeader, "does-not-exist")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatefulMCPHandler_GetWithoutSessionIdIsBadRequest(t *testing.T) {
	store := newSessionStore(0)
	h := statefulMCPHandler(store, echoHandler)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStatefulMCPHandler_DeleteTerminatesSession(t *testing.T) {
	store := newSessionStore(0)
	store.put("sess-1", echoHandler())
	h := statefulMCPHandler(store, echoHandler)

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set(sessionHeader, "sess-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if _, ok := store.touch("sess-1"); ok {
		t.Error("expected session to be gone after DELETE")
	}
}

func TestHealthHandler_ReportsOK(t *testing.T) {
	rec := httptest.NewRecorder()
	healthHandler("1.2.3")(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "1.2.3" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestReadyHandler_ReportsNotReadyWithoutAPool(t *testing.T) {
	conn := dbconn.NewManager(dbconn.Config{Host: "127.0.0.1", Port: 1, Name: "none"}, nil, nil)
	rec := httptest.NewRecorder()
	readyHandler(conn)(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["status"] != "not_ready" || body["database"] != "disconnected" {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestOAuthMetadataHandler_AdvertisesConfiguredDomain(t *testing.T) {
	cfg := Config{Auth0Domain: "example.auth0.com", ResourceDocumentationURL: "https://docs.example.com"}
	rec := httptest.NewRecorder()
	oauthMetadataHandler(cfg)(rec, httptest.NewRequest(http.MethodGet, "/.well-known/oauth-protected-resource", nil))

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	servers, _ := body["authorization_servers"].([]any)
	if len(servers) != 1 || servers[0] != "https://example.auth0.com/" {
		t.Errorf("authorization_servers = %v", body["authorization_servers"])
	}
	if body["resource_documentation"] != "https://docs.example.com" {
		t.Errorf("resource_documentation = %v", body["resource_documentation"])
	}
}
