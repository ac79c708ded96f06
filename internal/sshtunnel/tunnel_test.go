package sshtunnel

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"postgres-ssh-mcp/internal/core"
)

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{Host: "example.com", Port: 22}, nil, nil)
	if m.IsConnected() {
		t.Fatal("expected new manager to not be connected")
	}
	st := m.GetState()
	if st.Status != core.TunnelDisconnected {
		t.Errorf("Status = %q, want %q", st.Status, core.TunnelDisconnected)
	}
}

func TestManager_AuthMethods_NoneConfigured(t *testing.T) {
	m := NewManager(Config{Host: "example.com", Port: 22, User: "bob"}, nil, nil)
	if _, err := m.authMethods(); err == nil {
		t.Fatal("expected error when neither private key nor password is configured")
	}
}

func TestManager_AuthMethods_PasswordOnly(t *testing.T) {
	m := NewManager(Config{Host: "example.com", Port: 22, User: "bob", Password: "hunter2"}, nil, nil)
	methods, err := m.authMethods()
	if err != nil {
		t.Fatalf("authMethods: %v", err)
	}
	if len(methods) != 1 {
		t.Errorf("len(methods) = %d, want 1", len(methods))
	}
}

func TestManager_AuthMethods_RejectsLooseKeyPermissions(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_rsa")
	if err := os.WriteFile(keyPath, []byte("not-a-real-key"), 0o644); err != nil {
		t.Fatalf("write key: %v", err)
	}

	m := NewManager(Config{Host: "example.com", Port: 22, User: "bob", PrivateKeyPath: keyPath}, nil, nil)
	if _, err := m.authMethods(); err == nil {
		t.Fatal("expected error for world-readable private key")
	}
}

func TestManager_AuthMethods_RejectsUnparsableKey(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "id_rsa")
	if err := os.WriteFile(keyPath, []byte("not-a-real-key"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	m := NewManager(Config{Host: "example.com", Port: 22, User: "bob", PrivateKeyPath: keyPath}, nil, nil)
	if _, err := m.authMethods(); err == nil {
		t.Fatal("expected error for a key file that isn't valid PEM")
	}
}

func TestManager_HostKeyCallback_InsecureWhenNoVerifier(t *testing.T) {
	m := NewManager(Config{Host: "example.com", Port: 22}, nil, nil)
	cb := m.hostKeyCallback()
	if cb == nil {
		t.Fatal("expected a non-nil host key callback")
	}
}

func TestManager_EventHandlers_ReceiveEmittedEvents(t *testing.T) {
	m := NewManager(Config{Host: "example.com", Port: 22}, nil, nil)
	received := make(chan Event, 1)
	m.OnEvent(func(ev Event) { received <- ev })

	m.emit(Event{Kind: EventDisconnecting, OldPort: 5432})

	select {
	case ev := <-received:
		if ev.Kind != EventDisconnecting || ev.OldPort != 5432 {
			t.Errorf("got %+v, want disconnecting event with OldPort=5432", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
}

func TestManager_Close_IdempotentWithoutConnect(t *testing.T) {
	m := NewManager(Config{Host: "example.com", Port: 22}, nil, nil)
	if err := m.Close(nil); err != nil { //nolint:staticcheck // Close accepts context but performs no I/O when unconnected
		t.Fatalf("Close: %v", err)
	}
	if !m.isShutdown() {
		t.Error("expected shutdown flag to be set after Close")
	}
	if err := m.Close(nil); err != nil { //nolint:staticcheck // second Close must also succeed
		t.Fatalf("second Close: %v", err)
	}
}
