package httpmcp

import (
	"time"

	"postgres-ssh-mcp/internal/config"
)

// configFrom translates the process-wide Config into the HTTP
// transport's own Config, converting the minutes/milliseconds env
// settings into time.Duration once at startup.
func configFrom(cfg *config.Config) Config {
	return Config{
		Host: cfg.MCPHost,
		Port: cfg.Port,

		AllowedOrigins: cfg.MCPAllowedOrigins,
		AllowedHosts:   cfg.MCPAllowedHosts,

		AuthMode:      cfg.MCPAuthMode,
		Auth0Domain:   cfg.Auth0Domain,
		Auth0Audience: cfg.Auth0Audience,

		Stateless:              cfg.MCPStateless,
		ServerPoolSize:         cfg.MCPServerPoolSize,
		SessionTTL:             time.Duration(cfg.MCPSessionTTLMinutes) * time.Minute,
		SessionCleanupInterval: time.Duration(cfg.MCPSessionCleanupIntervalMs) * time.Millisecond,

		ResourceDocumentationURL: cfg.MCPResourceDocumentation,
	}
}
