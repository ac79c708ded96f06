package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t, "DATABASE_URI", "DATABASE_HOST", "DATABASE_PORT", "SSH_ENABLED",
		"READ_ONLY", "QUERY_TIMEOUT", "MAX_ROWS", "PORT", "MCP_STATELESS",
		"DATABASE_SSL", "MCP_ALLOWED_ORIGINS")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabasePort != 5432 {
		t.Errorf("DatabasePort = %d, want 5432", cfg.DatabasePort)
	}
	if !cfg.ReadOnly {
		t.Error("expected ReadOnly to default true")
	}
	if cfg.QueryTimeout != 30*time.Second {
		t.Errorf("QueryTimeout = %v, want 30s", cfg.QueryTimeout)
	}
	if cfg.MaxRows != 1000 {
		t.Errorf("MaxRows = %d, want 1000", cfg.MaxRows)
	}
	if cfg.Port != 3000 {
		t.Errorf("Port = %d, want 3000", cfg.Port)
	}
	if !cfg.MCPStateless {
		t.Error("expected MCPStateless to default true")
	}
	if cfg.DatabaseSSL != nil {
		t.Error("expected DatabaseSSL to default unset (nil)")
	}
	if cfg.MCPAllowedOrigins != nil {
		t.Errorf("expected no allowed origins by default, got %v", cfg.MCPAllowedOrigins)
	}
}

func TestLoad_DatabaseSSLExplicit(t *testing.T) {
	t.Setenv("DATABASE_SSL", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DatabaseSSL == nil || *cfg.DatabaseSSL != false {
		t.Errorf("DatabaseSSL = %v, want pointer to false", cfg.DatabaseSSL)
	}
}

func TestLoad_InvalidIntegerReturnsError(t *testing.T) {
	t.Setenv("MAX_ROWS", "not-a-number")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid MAX_ROWS")
	}
}

func TestLoad_AllowedOriginsSplitsOnComma(t *testing.T) {
	t.Setenv("MCP_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"https://a.example.com", "https://b.example.com"}
	if len(cfg.MCPAllowedOrigins) != len(want) {
		t.Fatalf("got %v, want %v", cfg.MCPAllowedOrigins, want)
	}
	for i := range want {
		if cfg.MCPAllowedOrigins[i] != want[i] {
			t.Errorf("origin %d = %q, want %q", i, cfg.MCPAllowedOrigins[i], want[i])
		}
	}
}
