// Package wiring builds the Connection Manager (and, when configured,
// the SSH Tunnel Manager it wraps) from a resolved Config. Both
// transports share this construction so the tunnel/pool wiring rules
// live in exactly one place.
package wiring

import (
	"context"
	"log/slog"
	"time"

	"postgres-ssh-mcp/internal/config"
	"postgres-ssh-mcp/internal/dbconn"
	"postgres-ssh-mcp/internal/obfuscate"
	"postgres-ssh-mcp/internal/sshtunnel"
)

// RetryInterval is how long both transports wait between failed
// Initialize attempts.
const RetryInterval = 5 * time.Second

// BuildConnectionManager constructs a Connection Manager per cfg. It does
// not call Initialize; callers decide when and how often to retry that.
func BuildConnectionManager(cfg *config.Config, log *slog.Logger) *dbconn.Manager {
	var tunnel *sshtunnel.Manager
	if cfg.SSHEnabled {
		var verifier *sshtunnel.HostKeyVerifier
		if cfg.SSHStrictHostKey || cfg.SSHTrustOnFirstUse {
			verifier, _ = sshtunnel.NewHostKeyVerifier(cfg.SSHKnownHostsPath, cfg.SSHTrustOnFirstUse)
		}
		tunnel = sshtunnel.NewManager(sshtunnel.Config{
			Host:                 cfg.SSHHost,
			Port:                 cfg.SSHPort,
			User:                 cfg.SSHUser,
			PrivateKeyPath:       cfg.SSHPrivateKeyPath,
			PrivateKeyPassphrase: cfg.SSHPrivateKeyPassphrase,
			Password:             cfg.SSHPassword,
			KeepAliveInterval:    cfg.SSHKeepAliveInterval,
			MaxReconnectAttempts: cfg.SSHMaxReconnectAttempts,
			TargetHost:           cfg.DatabaseHost,
			TargetPort:           cfg.DatabasePort,
		}, verifier, log)
	}

	return dbconn.NewManager(dbconn.Config{
		URI:                   cfg.DatabaseURI,
		Host:                  cfg.DatabaseHost,
		Port:                  cfg.DatabasePort,
		Name:                  cfg.DatabaseName,
		User:                  cfg.DatabaseUser,
		Password:              cfg.DatabasePassword,
		SSLExplicit:           cfg.DatabaseSSL,
		SSLCA:                 cfg.DatabaseSSLCA,
		SSLRejectUnauthorized: cfg.DatabaseSSLRejectUnauthorized,
		ReadOnly:              cfg.ReadOnly,
		QueryTimeout:          cfg.QueryTimeout,
		MaxRows:               cfg.MaxRows,
		MaxConcurrentQueries:  cfg.MaxConcurrentQueries,
		PoolDrainTimeout:      cfg.PoolDrainTimeout,
	}, tunnel, log)
}

// RetryInitialize keeps attempting conn.Initialize every RetryInterval
// until it succeeds or ctx is cancelled, closing the manager
// best-effort between attempts so a half-open tunnel or pool never
// lingers. This keeps a transport's listener alive before the database
// is reachable, which matters with trust-on-first-use since the
// host-key file can be written between attempts.
func RetryInitialize(ctx context.Context, conn *dbconn.Manager, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	for ctx.Err() == nil {
		if err := conn.Initialize(ctx); err != nil {
			log.Error("initialize failed; retrying", "error", obfuscate.Error(err), "retryIn", RetryInterval)
			conn.Close(ctx) //nolint:errcheck
			select {
			case <-time.After(RetryInterval):
				continue
			case <-ctx.Done():
				return
			}
		}
		log.Info("connection manager initialized")
		return
	}
}
