package tools

import (
	"context"
	"testing"

	"postgres-ssh-mcp/internal/dbconn"
)

func TestNewRegistry_DeterministicOrder(t *testing.T) {
	conn := dbconn.NewManager(dbconn.Config{}, nil, nil)
	reg := NewRegistry(conn)

	want := []string{
		"execute_query", "explain_query", "list_schemas", "list_tables",
		"describe_table", "list_databases", "get_connection_status",
		"get_database_version", "get_database_size", "get_table_stats",
		"list_active_connections", "list_long_running_queries",
	}
	specs := reg.Specs()
	if len(specs) != len(want) {
		t.Fatalf("got %d tools, want %d", len(specs), len(want))
	}
	for i, name := range want {
		if specs[i].Name != name {
			t.Errorf("tool %d = %q, want %q", i, specs[i].Name, name)
		}
	}
}

func TestRegistry_Lookup(t *testing.T) {
	conn := dbconn.NewManager(dbconn.Config{}, nil, nil)
	reg := NewRegistry(conn)

	if _, ok := reg.Lookup("execute_query"); !ok {
		t.Error("expected execute_query to be registered")
	}
	if _, ok := reg.Lookup("does_not_exist"); ok {
		t.Error("expected lookup miss for unregistered tool name")
	}
}

func TestGetConnectionStatus_HandlerRunsWithoutPool(t *testing.T) {
	conn := dbconn.NewManager(dbconn.Config{}, nil, nil)
	reg := NewRegistry(conn)
	spec, ok := reg.Lookup("get_connection_status")
	if !ok {
		t.Fatal("get_connection_status not registered")
	}

	resp := spec.Handler(context.Background(), map[string]any{})
	if resp.IsError {
		t.Errorf("expected non-error response, got %+v", resp)
	}
}

func TestExecuteQuery_RequiresSQL(t *testing.T) {
	conn := dbconn.NewManager(dbconn.Config{}, nil, nil)
	reg := NewRegistry(conn)
	spec, _ := reg.Lookup("execute_query")

	resp := spec.Handler(context.Background(), map[string]any{})
	if !resp.IsError {
		t.Error("expected error response when sql argument is missing")
	}
}

func TestGetParams_DecodesPositionalValues(t *testing.T) {
	args := map[string]any{"params": []any{"alice", float64(42), nil, true}}
	params := getParams(args)
	if len(params) != 4 {
		t.Fatalf("len(params) = %d, want 4", len(params))
	}
	if params[0].Value() != "alice" {
		t.Errorf("params[0] = %v, want alice", params[0].Value())
	}
}

func TestGetInt_FallsBackToDefault(t *testing.T) {
	if got := getInt(map[string]any{}, "limit", 10); got != 10 {
		t.Errorf("getInt default = %d, want 10", got)
	}
	if got := getInt(map[string]any{"limit": float64(25)}, "limit", 10); got != 25 {
		t.Errorf("getInt from float64 = %d, want 25", got)
	}
}

func TestMergeConstraints_GroupsColumnsByName(t *testing.T) {
	rows := []map[string]any{
		{"constraint_name": "pk_users", "constraint_type": "PRIMARY KEY", "column_name": "id"},
		{"constraint_name": "uq_users_email", "constraint_type": "UNIQUE", "column_name": "email"},
		{"constraint_name": "pk_users", "constraint_type": "PRIMARY KEY", "column_name": "tenant_id"},
	}
	merged := mergeConstraints(rows)
	if len(merged) != 2 {
		t.Fatalf("len(merged) = %d, want 2", len(merged))
	}
	if merged[0].Name != "pk_users" || len(merged[0].Columns) != 2 {
		t.Errorf("merged[0] = %+v, want pk_users with 2 columns", merged[0])
	}
}
