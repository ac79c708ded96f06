package mcpserver

import (
	"testing"

	"postgres-ssh-mcp/internal/dbconn"
	"postgres-ssh-mcp/internal/tools"
)

func TestNew_RegistersAllTools(t *testing.T) {
	conn := dbconn.NewManager(dbconn.Config{}, nil, nil)
	reg := tools.NewRegistry(conn)

	s := New(reg, "test")
	if s == nil {
		t.Fatal("expected non-nil server")
	}
}

func TestToFloat(t *testing.T) {
	if f, ok := toFloat(10); !ok || f != 10 {
		t.Errorf("toFloat(int 10) = (%v, %v), want (10, true)", f, ok)
	}
	if f, ok := toFloat(float64(2.5)); !ok || f != 2.5 {
		t.Errorf("toFloat(float64 2.5) = (%v, %v), want (2.5, true)", f, ok)
	}
	if _, ok := toFloat("not a number"); ok {
		t.Error("toFloat(string) should report ok=false")
	}
}
