// Package sshtunnel implements an asynchronous local TCP forwarder over a
// reusable SSH connection: host-key verification (trust-on-first-use),
// automatic reconnection with exponential backoff, keepalive, and clean
// teardown of in-flight forwarded sockets.
package sshtunnel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/obfuscate"
)

// EventKind identifies which of the tunnel's three lifecycle events fired.
type EventKind string

const (
	EventDisconnecting EventKind = "disconnecting"
	EventReconnected   EventKind = "reconnected"
	EventFailed        EventKind = "failed"
)

// Event is emitted to subscribers on disconnect, successful reconnect, and
// terminal failure.
type Event struct {
	Kind    EventKind
	OldPort int
	NewPort int
	Err     error
}

// EventHandler receives tunnel lifecycle events. Handlers are invoked
// synchronously from the manager's supervisor goroutine and must not
// block for long.
type EventHandler func(Event)

// Config holds the parameters for one SSH tunnel.
type Config struct {
	Host                 string
	Port                 int
	User                 string
	PrivateKeyPath       string
	PrivateKeyPassphrase string
	Password             string
	KnownHostsPath       string
	StrictHostKey        bool
	TrustOnFirstUse      bool
	KeepAliveInterval    time.Duration
	KeepAliveMaxMissed   int
	MaxReconnectAttempts int // -1 means unlimited
	TargetHost           string
	TargetPort           int
}

// session holds the resources owned exclusively by one live SSH
// connection: the client, the local listener, and the set of forwarded
// sockets currently relaying bytes.
type session struct {
	client   *ssh.Client
	listener net.Listener
	port     int

	mu      sync.Mutex
	sockets map[net.Conn]struct{}
}

// Manager is the SSH Tunnel Manager (C2). At most one session exists at
// any time; during reconnect the old listener and client are destroyed
// before a new listener is bound.
type Manager struct {
	cfg      Config
	verifier *HostKeyVerifier
	log      *slog.Logger

	mu                sync.Mutex
	status            core.TunnelStatus
	localPort         int
	connectedSince    time.Time
	reconnectAttempts int
	lastError         string
	shutdown          bool
	sess              *session

	handlersMu sync.Mutex
	handlers   []EventHandler
}

// NewManager constructs a tunnel manager. It does not perform any I/O.
func NewManager(cfg Config, verifier *HostKeyVerifier, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		verifier: verifier,
		log:      log.With("component", "ssh-tunnel", "host", cfg.Host),
		status:   core.TunnelDisconnected,
	}
}

// OnEvent registers a handler invoked for every lifecycle event.
func (m *Manager) OnEvent(h EventHandler) {
	m.handlersMu.Lock()
	defer m.handlersMu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) emit(ev Event) {
	m.handlersMu.Lock()
	handlers := append([]EventHandler(nil), m.handlers...)
	m.handlersMu.Unlock()
	for _, h := range handlers {
		h(ev)
	}
}

// GetState returns a snapshot of the current tunnel state.
func (m *Manager) GetState() core.TunnelState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return core.TunnelState{
		Status:            m.status,
		LocalPort:         m.localPort,
		ConnectedSince:    m.connectedSince,
		ReconnectAttempts: m.reconnectAttempts,
		LastError:         m.lastError,
	}
}

// IsConnected reports whether the tunnel is currently serviceable.
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == core.TunnelConnected
}

func (m *Manager) isShutdown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Connect performs the initial connection and, on success, starts a
// background supervisor that reconnects on failure with exponential
// backoff. It blocks until the first connect attempt succeeds or fails.
func (m *Manager) Connect(ctx context.Context) (int, error) {
	m.mu.Lock()
	m.status = core.TunnelConnecting
	m.shutdown = false
	m.mu.Unlock()

	sess, err := m.dialAndListen(ctx)
	if err != nil {
		m.mu.Lock()
		m.status = core.TunnelFailed
		m.lastError = obfuscate.Error(err)
		m.mu.Unlock()
		return 0, &core.TunnelError{Message: "connect failed", Err: err}
	}

	m.mu.Lock()
	m.sess = sess
	m.status = core.TunnelConnected
	m.localPort = sess.port
	m.connectedSince = time.Now()
	m.reconnectAttempts = 0
	m.mu.Unlock()

	go m.superviseLoop(ctx, sess)
	return sess.port, nil
}

// Close shuts the tunnel down: it suppresses further reconnect
// scheduling, destroys any active forwarded sockets, closes the listener,
// and ends the SSH client.
func (m *Manager) Close(_ context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	sess := m.sess
	m.sess = nil
	m.status = core.TunnelDisconnected
	m.localPort = 0
	m.mu.Unlock()

	if sess != nil {
		closeSession(sess)
	}
	return nil
}

// superviseLoop waits for the current SSH session to end, then repeatedly
// attempts to reconnect with exponential backoff until shutdown or
// MaxReconnectAttempts is exhausted.
func (m *Manager) superviseLoop(ctx context.Context, sess *session) {
	for {
		waitErr := sess.client.Wait()
		if m.isShutdown() {
			return
		}

		oldPort := sess.port
		closeSession(sess)

		m.mu.Lock()
		m.status = core.TunnelReconnecting
		m.localPort = 0
		m.lastError = obfuscate.Error(waitErr)
		m.mu.Unlock()
		m.emit(Event{Kind: EventDisconnecting, OldPort: oldPort})

		bo := NewBackoff(1*time.Second, 30*time.Second)
		var newSess *session
		for {
			if m.isShutdown() {
				return
			}
			var err error
			newSess, err = m.dialAndListen(ctx)
			if err != nil {
				m.mu.Lock()
				m.reconnectAttempts++
				attempts := m.reconnectAttempts
				m.lastError = obfuscate.Error(err)
				m.mu.Unlock()

				if m.cfg.MaxReconnectAttempts >= 0 && attempts >= m.cfg.MaxReconnectAttempts {
					m.mu.Lock()
					m.status = core.TunnelFailed
					m.mu.Unlock()
					m.emit(Event{Kind: EventFailed, Err: err})
					return
				}
				if !SleepCtx(ctx, bo.Next()) {
					return
				}
				continue
			}
			break
		}

		m.mu.Lock()
		m.sess = newSess
		m.status = core.TunnelConnected
		m.localPort = newSess.port
		m.connectedSince = time.Now()
		m.reconnectAttempts = 0
		m.mu.Unlock()
		m.emit(Event{Kind: EventReconnected, OldPort: oldPort, NewPort: newSess.port})

		sess = newSess
	}
}

// dialAndListen checks the private key file's permissions, opens the SSH
// connection (verifying the host key during the handshake), binds an ephemeral local listener, and starts the accept loop. On any
// failure it cleans up partially-opened resources before returning.
func (m *Manager) dialAndListen(ctx context.Context) (*session, error) {
	authMethods, err := m.authMethods()
	if err != nil {
		return nil, err
	}

	clientCfg := &ssh.ClientConfig{
		User:            m.cfg.User,
		Auth:            authMethods,
		Timeout:         20 * time.Second,
		HostKeyCallback: m.hostKeyCallback(),
	}

	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)
	conn, err := net.DialTimeout("tcp", addr, clientCfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	if m.cfg.KeepAliveInterval > 0 {
		go m.keepAlive(client)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("listen local port: %w", err)
	}

	port := ln.Addr().(*net.TCPAddr).Port
	sess := &session{client: client, listener: ln, port: port, sockets: make(map[net.Conn]struct{})}
	go m.acceptLoop(ctx, sess)

	return sess, nil
}

func (m *Manager) hostKeyCallback() ssh.HostKeyCallback {
	if m.verifier == nil {
		return ssh.InsecureIgnoreHostKey() //nolint:gosec // only reached when strict host-key checking is explicitly disabled
	}
	return m.verifier.Callback(m.cfg.Host, m.cfg.Port)
}

func (m *Manager) authMethods() ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if m.cfg.PrivateKeyPath != "" {
		info, err := os.Stat(m.cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("stat private key: %w", err)
		}
		if info.Mode().Perm()&0o077 != 0 {
			return nil, fmt.Errorf("private key %s has overly permissive mode %v; run chmod 600", m.cfg.PrivateKeyPath, info.Mode().Perm())
		}
		keyData, err := os.ReadFile(m.cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}

		var signer ssh.Signer
		if m.cfg.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyData, []byte(m.cfg.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyData)
		}
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if m.cfg.Password != "" {
		methods = append(methods, ssh.Password(m.cfg.Password))
	}

	if len(methods) == 0 {
		return nil, errors.New("no SSH authentication method configured")
	}
	return methods, nil
}

func (m *Manager) keepAlive(client *ssh.Client) {
	interval := m.cfg.KeepAliveInterval
	maxMissed := m.cfg.KeepAliveMaxMissed
	if maxMissed <= 0 {
		maxMissed = 3
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	missed := 0
	for range ticker.C {
		_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
		if err != nil {
			missed++
			if missed >= maxMissed {
				client.Close()
				return
			}
			continue
		}
		missed = 0
	}
}

// acceptLoop accepts inbound TCP connections on the local listener and
// relays each through a direct-tcpip channel to the configured target.
func (m *Manager) acceptLoop(ctx context.Context, sess *session) {
	for {
		conn, err := sess.listener.Accept()
		if err != nil {
			return
		}
		sess.mu.Lock()
		sess.sockets[conn] = struct{}{}
		sess.mu.Unlock()
		go m.relay(ctx, sess, conn)
	}
}

func (m *Manager) relay(_ context.Context, sess *session, local net.Conn) {
	defer func() {
		sess.mu.Lock()
		delete(sess.sockets, local)
		sess.mu.Unlock()
		local.Close()
	}()

	target := fmt.Sprintf("%s:%d", m.cfg.TargetHost, m.cfg.TargetPort)
	remote, err := sess.client.Dial("tcp", target)
	if err != nil {
		m.log.Warn("direct-tcpip dial failed", "target", target, "error", obfuscate.Error(err))
		return
	}
	defer remote.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		io.Copy(remote, local) //nolint:errcheck // best-effort relay; errors end the copy loop
	}()
	go func() {
		defer wg.Done()
		io.Copy(local, remote) //nolint:errcheck
	}()
	wg.Wait()
}

// closeSession destroys every live forwarded socket, closes the listener,
// and ends the SSH client.
func closeSession(sess *session) {
	sess.mu.Lock()
	sockets := make([]net.Conn, 0, len(sess.sockets))
	for c := range sess.sockets {
		sockets = append(sockets, c)
	}
	sess.mu.Unlock()

	for _, c := range sockets {
		c.Close()
	}
	sess.listener.Close()
	sess.client.Close()
}
