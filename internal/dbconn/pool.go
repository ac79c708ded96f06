// Package dbconn is the Connection Manager (C4): it owns the pgx pool,
// reacts to SSH tunnel lifecycle events by rebuilding and draining pools,
// enforces the read-only/row-cap/concurrency contract on every query, and
// reports pool and tunnel health.
package dbconn

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/obfuscate"
	"postgres-ssh-mcp/internal/sqlsafety"
	"postgres-ssh-mcp/internal/sshtunnel"
)

// Config holds everything the connection manager needs to build and
// police pgx pools across the lifetime of the process.
type Config struct {
	URI      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string

	SSLExplicit           *bool
	SSLCA                 string
	SSLRejectUnauthorized bool

	ReadOnly             bool
	QueryTimeout         time.Duration
	MaxRows              int
	MaxConcurrentQueries int
	PoolDrainTimeout     time.Duration
}

// QueryOptions customizes one ExecuteQuery call.
type QueryOptions struct {
	Params        []core.QueryParam
	ForceReadOnly bool
}

// Manager is the Connection Manager. When cfg pairs with a non-nil
// tunnel, the manager connects the tunnel first and points the pool at
// its local forwarded port, rebuilding the pool whenever the tunnel
// reconnects.
type Manager struct {
	cfg    Config
	tunnel *sshtunnel.Manager
	log    *slog.Logger
	sem    *semaphore

	mu               sync.Mutex
	pool             *pgxpool.Pool
	initialized      bool
	isReconnecting   bool
	sslEnabled       bool
	currentLocalPort int
}

// NewManager constructs a Manager. tunnel may be nil when SSH forwarding
// is disabled, in which case cfg.Host/cfg.Port are dialed directly.
func NewManager(cfg Config, tunnel *sshtunnel.Manager, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:    cfg,
		tunnel: tunnel,
		log:    log.With("component", "dbconn"),
		sem:    newSemaphore(cfg.MaxConcurrentQueries),
	}
}

// Initialize connects the tunnel (if configured), builds the pgx pool,
// and runs a SELECT 1 healthcheck. Failure at any step is fatal to
// startup.
func (m *Manager) Initialize(ctx context.Context) error {
	host, port := m.cfg.Host, m.cfg.Port
	if m.tunnel != nil {
		localPort, err := m.tunnel.Connect(ctx)
		if err != nil {
			return &core.TunnelError{Message: "tunnel connect failed", Err: err}
		}
		host, port = "127.0.0.1", localPort
		m.tunnel.OnEvent(m.handleTunnelEvent)
	}

	pool, sslEnabled, err := m.buildPool(ctx, host, port)
	if err != nil {
		return err
	}

	if err := healthCheck(ctx, pool); err != nil {
		pool.Close()
		return &core.PoolError{Message: fmt.Sprintf("healthcheck failed: %s", obfuscate.Error(err))}
	}

	m.mu.Lock()
	m.pool = pool
	m.sslEnabled = sslEnabled
	m.currentLocalPort = port
	m.initialized = true
	m.mu.Unlock()
	return nil
}

// Close tears down the active pool and, if present, the SSH tunnel.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	pool := m.pool
	m.pool = nil
	m.initialized = false
	m.mu.Unlock()

	if pool != nil {
		pool.Close()
	}
	if m.tunnel != nil {
		return m.tunnel.Close(ctx)
	}
	return nil
}

// GetStatus returns a snapshot combining tunnel state and pool
// statistics, as served by the get_connection_status tool.
func (m *Manager) GetStatus() core.ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	var tunnelState *core.TunnelState
	if m.tunnel != nil {
		st := m.tunnel.GetState()
		tunnelState = &st
	}

	var poolStat core.PoolStatus
	if m.pool != nil {
		stat := m.pool.Stat()
		poolStat = core.PoolStatus{
			CurrentLocalPort: m.currentLocalPort,
			SSLEnabled:       m.sslEnabled,
			InFlight:         m.sem.InFlight(),
			Waiters:          m.sem.Waiters(),
			TotalConns:       stat.TotalConns(),
			IdleConns:        stat.IdleConns(),
			AcquiredConns:    stat.AcquiredConns(),
		}
	}

	return core.ConnectionStatus{
		Initialized:    m.initialized,
		ReadOnly:       m.cfg.ReadOnly,
		Tunnel:         tunnelState,
		Pool:           poolStat,
		IsReconnecting: m.isReconnecting,
	}
}

// HealthCheck runs a trivial query against the current pool, used by the
// HTTP transport's readiness probe. It fails fast if no pool exists yet.
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.Lock()
	pool := m.pool
	initialized := m.initialized
	m.mu.Unlock()

	if !initialized || pool == nil {
		return &core.PoolError{Message: "connection pool is not initialized"}
	}
	return healthCheck(ctx, pool)
}

// ExecuteQuery validates (when read-only), rate-limits, and runs sql
// inside an appropriately-scoped transaction, capping returned rows at
// cfg.MaxRows.
func (m *Manager) ExecuteQuery(ctx context.Context, sql string, opts QueryOptions) (*core.QueryResult, error) {
	m.mu.Lock()
	initialized := m.initialized
	reconnecting := m.isReconnecting
	pool := m.pool
	readOnly := m.cfg.ReadOnly || opts.ForceReadOnly
	maxRows := m.cfg.MaxRows
	m.mu.Unlock()

	if !initialized || pool == nil {
		return nil, &core.PoolError{Message: "connection pool is not initialized"}
	}
	if reconnecting {
		return nil, &core.PoolError{Message: "database tunnel is reconnecting; try again shortly"}
	}

	if readOnly {
		if err := sqlsafety.ValidateReadOnly(sql); err != nil {
			return nil, &core.ValidationError{Message: err.Error()}
		}
	}

	if m.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.QueryTimeout)
		defer cancel()
	}

	if err := m.sem.Acquire(ctx); err != nil {
		return nil, &core.PoolError{Message: "timed out waiting for a free query slot"}
	}
	defer m.sem.Release()

	args := paramValues(opts.Params)
	start := time.Now()
	var result *core.QueryResult
	var queryErr error
	if readOnly {
		result, queryErr = m.executeReadOnly(ctx, pool, sql, args, maxRows)
	} else {
		result, queryErr = m.executeReadWrite(ctx, pool, sql, args, maxRows)
	}
	observeQuery(start, queryErr)
	return result, queryErr
}

func (m *Manager) executeReadOnly(ctx context.Context, pool *pgxpool.Pool, sql string, args []any, maxRows int) (*core.QueryResult, error) {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, &core.QueryError{Message: "begin read-only transaction", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // always attempted; the read-only path never commits

	result, err := m.runStatement(ctx, tx, sql, args, maxRows)
	if err != nil {
		return nil, &core.QueryError{Message: "query failed", Err: err}
	}
	return result, nil
}

func (m *Manager) executeReadWrite(ctx context.Context, pool *pgxpool.Pool, sql string, args []any, maxRows int) (*core.QueryResult, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, &core.QueryError{Message: "begin transaction", Err: err}
	}

	result, err := m.runStatement(ctx, tx, sql, args, maxRows)
	if err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return nil, &core.QueryError{Message: "query failed", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, &core.QueryError{Message: "commit failed", Err: err}
	}
	result.Command = sqlsafety.FirstKeyword(sql)
	return result, nil
}

func (m *Manager) runStatement(ctx context.Context, tx pgx.Tx, sql string, args []any, maxRows int) (*core.QueryResult, error) {
	if sqlsafety.CursorEligible(sql) {
		return runWithCursor(ctx, tx, sql, args, maxRows)
	}

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs, fields, truncated, err := collectRows(rows, maxRows)
	if err != nil {
		return nil, err
	}
	return &core.QueryResult{Rows: rs, RowCount: len(rs), Truncated: truncated, Fields: fields}, nil
}

func paramValues(params []core.QueryParam) []any {
	args := make([]any, len(params))
	for i, p := range params {
		args[i] = p.Value()
	}
	return args
}

func healthCheck(ctx context.Context, pool *pgxpool.Pool) error {
	var one int
	return pool.QueryRow(ctx, "SELECT 1").Scan(&one)
}

// handleTunnelEvent reacts to the tunnel's lifecycle: a disconnect marks
// the manager as reconnecting so in-flight callers fail fast, a
// reconnect rebuilds the pool against the new local port and drains the
// old one in the background, and a terminal failure marks the manager
// uninitialized.
func (m *Manager) handleTunnelEvent(ev sshtunnel.Event) {
	switch ev.Kind {
	case sshtunnel.EventDisconnecting:
		m.mu.Lock()
		m.isReconnecting = true
		m.mu.Unlock()
	case sshtunnel.EventReconnected:
		m.reconnectPool(ev.NewPort)
	case sshtunnel.EventFailed:
		m.mu.Lock()
		m.initialized = false
		m.mu.Unlock()
	}
}

func (m *Manager) reconnectPool(newPort int) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	newPool, sslEnabled, err := m.buildPool(ctx, "127.0.0.1", newPort)
	if err != nil {
		m.log.Error("failed to rebuild pool after tunnel reconnect", "error", obfuscate.Error(err))
		m.mu.Lock()
		m.initialized = false
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	old := m.pool
	m.pool = newPool
	m.sslEnabled = sslEnabled
	m.currentLocalPort = newPort
	m.isReconnecting = false
	m.initialized = true
	m.mu.Unlock()

	if old != nil {
		go drainPool(old, m.cfg.PoolDrainTimeout, m.log)
	}
}

// drainPool closes old in the background, logging if it outlives the
// configured drain timeout; pgxpool.Pool.Close blocks until every
// acquired connection is returned, so an overrun just means slow
// queries are still finishing on the superseded pool.
func drainPool(pool *pgxpool.Pool, timeout time.Duration, log *slog.Logger) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		log.Warn("pool drain exceeded timeout; old connections are closing in the background")
	}
}

func (m *Manager) buildPool(ctx context.Context, host string, port int) (*pgxpool.Pool, bool, error) {
	connString, sslEnabled, err := m.connString(host, port)
	if err != nil {
		return nil, false, err
	}

	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, false, &core.PoolError{Message: fmt.Sprintf("parse connection config: %s", obfuscate.Error(err))}
	}
	poolCfg.MaxConns = 10
	poolCfg.MaxConnIdleTime = 30 * time.Second
	poolCfg.ConnConfig.ConnectTimeout = 10 * time.Second
	if m.cfg.QueryTimeout > 0 {
		poolCfg.ConnConfig.RuntimeParams["statement_timeout"] = strconv.FormatInt(m.cfg.QueryTimeout.Milliseconds(), 10)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, false, &core.PoolError{Message: fmt.Sprintf("create pool: %s", obfuscate.Error(err))}
	}
	return pool, sslEnabled, nil
}

func (m *Manager) connString(host string, port int) (string, bool, error) {
	decision := DecideSSL(m.cfg.SSLExplicit, m.cfg.SSLRejectUnauthorized, m.cfg.SSLCA, host)

	if m.cfg.URI != "" {
		u, err := url.Parse(m.cfg.URI)
		if err != nil {
			return "", false, &core.ConfigError{Message: "parse DATABASE_URI", Err: err}
		}
		q := u.Query()
		if q.Get("sslmode") != "" {
			m.log.Warn("ignoring sslmode present in DATABASE_URI; SSL is controlled by DATABASE_SSL")
			q.Del("sslmode")
		}
		u.Host = fmt.Sprintf("%s:%d", host, port)
		q.Set("sslmode", sslMode(decision))
		if decision.CAPath != "" {
			q.Set("sslrootcert", decision.CAPath)
		}
		u.RawQuery = q.Encode()
		return u.String(), decision.Enabled, nil
	}

	values := url.Values{}
	values.Set("sslmode", sslMode(decision))
	if decision.CAPath != "" {
		values.Set("sslrootcert", decision.CAPath)
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(m.cfg.User, m.cfg.Password),
		Host:     fmt.Sprintf("%s:%d", host, port),
		Path:     "/" + m.cfg.Name,
		RawQuery: values.Encode(),
	}
	return u.String(), decision.Enabled, nil
}

func sslMode(d SSLDecision) string {
	if !d.Enabled {
		return "disable"
	}
	if !d.RejectUnauthorized {
		return "require"
	}
	return "verify-full"
}
