// Package config loads the bridge's configuration from the process
// environment. It intentionally avoids a configuration framework: every
// setting is a flat environment variable with a documented default, read
// once at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the fully-resolved configuration for one bridge process.
type Config struct {
	Transport string // "stdio" or "http"

	DatabaseURI      string
	DatabaseHost     string
	DatabasePort     int
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	DatabaseSSL                   *bool
	DatabaseSSLCA                 string
	DatabaseSSLRejectUnauthorized bool

	SSHEnabled               bool
	SSHHost                  string
	SSHPort                  int
	SSHUser                  string
	SSHPrivateKeyPath        string
	SSHPrivateKeyPassphrase  string
	SSHPassword              string
	SSHStrictHostKey         bool
	SSHTrustOnFirstUse       bool
	SSHKnownHostsPath        string
	SSHKeepAliveInterval     time.Duration
	SSHMaxReconnectAttempts  int

	ReadOnly             bool
	QueryTimeout         time.Duration
	MaxRows              int
	MaxConcurrentQueries int
	PoolDrainTimeout     time.Duration

	Port                        int
	MCPHost                     string
	MCPAuthMode                 string
	Auth0Domain                 string
	Auth0Audience               string
	MCPStateless                bool
	MCPServerPoolSize           int
	MCPSessionTTLMinutes        int
	MCPSessionCleanupIntervalMs int
	MCPAllowedOrigins           []string
	MCPAllowedHosts             []string
	MCPResourceDocumentation    string
}

// Load resolves Config from the environment, applying the documented
// defaults and validating the handful of settings that must parse as a
// specific type.
func Load() (*Config, error) {
	cfg := &Config{
		Transport: getString("MCP_TRANSPORT", "stdio"),

		DatabaseURI:      os.Getenv("DATABASE_URI"),
		DatabaseHost:     getString("DATABASE_HOST", "localhost"),
		DatabaseName:     os.Getenv("DATABASE_NAME"),
		DatabaseUser:     os.Getenv("DATABASE_USER"),
		DatabasePassword: os.Getenv("DATABASE_PASSWORD"),
		DatabaseSSLCA:    os.Getenv("DATABASE_SSL_CA"),

		SSHHost:                 os.Getenv("SSH_HOST"),
		SSHUser:                 os.Getenv("SSH_USER"),
		SSHPrivateKeyPath:       os.Getenv("SSH_PRIVATE_KEY_PATH"),
		SSHPrivateKeyPassphrase: os.Getenv("SSH_PRIVATE_KEY_PASSPHRASE"),
		SSHPassword:             os.Getenv("SSH_PASSWORD"),

		Port:    3000,
		MCPHost: getString("MCP_HOST", "0.0.0.0"),

		MCPAuthMode:              getString("MCP_AUTH_MODE", "none"),
		Auth0Domain:              os.Getenv("AUTH0_DOMAIN"),
		Auth0Audience:            os.Getenv("AUTH0_AUDIENCE"),
		MCPResourceDocumentation: os.Getenv("MCP_RESOURCE_DOCUMENTATION"),
	}

	var err error
	if cfg.DatabasePort, err = getInt("DATABASE_PORT", 5432); err != nil {
		return nil, err
	}
	if cfg.DatabaseSSLRejectUnauthorized, err = getBool("DATABASE_SSL_REJECT_UNAUTHORIZED", true); err != nil {
		return nil, err
	}
	if cfg.DatabaseSSL, err = getOptionalBool("DATABASE_SSL"); err != nil {
		return nil, err
	}

	if cfg.SSHEnabled, err = getBool("SSH_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.SSHPort, err = getInt("SSH_PORT", 22); err != nil {
		return nil, err
	}
	if cfg.SSHStrictHostKey, err = getBool("SSH_STRICT_HOST_KEY", true); err != nil {
		return nil, err
	}
	if cfg.SSHTrustOnFirstUse, err = getBool("SSH_TRUST_ON_FIRST_USE", true); err != nil {
		return nil, err
	}
	cfg.SSHKnownHostsPath = getString("SSH_KNOWN_HOSTS_PATH", defaultKnownHostsPath())
	keepAliveMs, err := getInt("SSH_KEEPALIVE_INTERVAL", 10000)
	if err != nil {
		return nil, err
	}
	cfg.SSHKeepAliveInterval = time.Duration(keepAliveMs) * time.Millisecond
	if cfg.SSHMaxReconnectAttempts, err = getInt("SSH_MAX_RECONNECT_ATTEMPTS", 5); err != nil {
		return nil, err
	}

	if cfg.ReadOnly, err = getBool("READ_ONLY", true); err != nil {
		return nil, err
	}
	queryTimeoutMs, err := getInt("QUERY_TIMEOUT", 30000)
	if err != nil {
		return nil, err
	}
	cfg.QueryTimeout = time.Duration(queryTimeoutMs) * time.Millisecond
	if cfg.MaxRows, err = getInt("MAX_ROWS", 1000); err != nil {
		return nil, err
	}
	if cfg.MaxConcurrentQueries, err = getInt("MAX_CONCURRENT_QUERIES", 10); err != nil {
		return nil, err
	}
	drainMs, err := getInt("POOL_DRAIN_TIMEOUT_MS", 5000)
	if err != nil {
		return nil, err
	}
	cfg.PoolDrainTimeout = time.Duration(drainMs) * time.Millisecond

	if cfg.Port, err = getInt("PORT", 3000); err != nil {
		return nil, err
	}
	if cfg.MCPStateless, err = getBool("MCP_STATELESS", true); err != nil {
		return nil, err
	}
	if cfg.MCPServerPoolSize, err = getInt("MCP_SERVER_POOL_SIZE", 4); err != nil {
		return nil, err
	}
	if cfg.MCPSessionTTLMinutes, err = getInt("MCP_SESSION_TTL_MINUTES", 30); err != nil {
		return nil, err
	}
	if cfg.MCPSessionCleanupIntervalMs, err = getInt("MCP_SESSION_CLEANUP_INTERVAL_MS", 300000); err != nil {
		return nil, err
	}
	cfg.MCPAllowedOrigins = getList("MCP_ALLOWED_ORIGINS")
	cfg.MCPAllowedHosts = getList("MCP_ALLOWED_HOSTS")

	return cfg, nil
}

func defaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ssh/known_hosts"
	}
	return home + "/.ssh/known_hosts"
}

func getString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, v, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q: %w", key, v, err)
	}
	return b, nil
}

// getOptionalBool implements the three-way DATABASE_SSL setting: unset
// returns (nil, nil) so callers can distinguish "not configured" from an
// explicit true or false.
func getOptionalBool(key string) (*bool, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid boolean %q: %w", key, v, err)
	}
	return &b, nil
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
