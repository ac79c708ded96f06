// Package tools is the Tool Registry (C5): it defines the twelve
// Postgres-inspection tools, their input contracts, and handlers that
// talk to the database exclusively through parameterized queries via the
// Connection Manager. Handlers never return a Go error to their caller;
// every failure is caught and turned into an obfuscated tool-error
// envelope, per the no-leaking-exceptions requirement.
package tools

import (
	"context"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/dbconn"
	"postgres-ssh-mcp/internal/obfuscate"
)

// InputField describes one named parameter of a tool's input schema.
type InputField struct {
	Name        string
	Type        string // "string", "number", "boolean", "array"
	Required    bool
	Default     any
	Description string
}

// HandlerFunc executes a tool call and always returns a usable response,
// even on failure.
type HandlerFunc func(ctx context.Context, args map[string]any) core.ToolResponse

// Spec is one registry entry: name, description, input schema, and
// handler. The protocol server (C6) adapts Specs into whatever shape its
// transport library expects.
type Spec struct {
	Name        string
	Description string
	Inputs      []InputField
	Handler     HandlerFunc
}

// Registry holds the twelve tools in a fixed, deterministic order so
// tools/list responses are stable across restarts.
type Registry struct {
	specs []Spec
}

// NewRegistry builds the registry against conn, the Connection Manager
// every handler dispatches queries through.
func NewRegistry(conn *dbconn.Manager) *Registry {
	r := &Registry{}
	r.specs = []Spec{
		executeQuerySpec(conn),
		explainQuerySpec(conn),
		listSchemasSpec(conn),
		listTablesSpec(conn),
		describeTableSpec(conn),
		listDatabasesSpec(conn),
		getConnectionStatusSpec(conn),
		getDatabaseVersionSpec(conn),
		getDatabaseSizeSpec(conn),
		getTableStatsSpec(conn),
		listActiveConnectionsSpec(conn),
		listLongRunningQueriesSpec(conn),
	}
	return r
}

// Specs returns the registered tools in registration order.
func (r *Registry) Specs() []Spec {
	return r.specs
}

// Lookup returns the spec with the given name, or false if none matches.
func (r *Registry) Lookup(name string) (Spec, bool) {
	for _, s := range r.specs {
		if s.Name == name {
			return s, true
		}
	}
	return Spec{}, false
}

// toolError wraps err in an obfuscated error response; handlers call this
// at every fallible step instead of propagating the raw error.
func toolError(err error) core.ToolResponse {
	return core.ErrorResult(obfuscate.Error(err))
}

func getString(args map[string]any, key, def string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return def
}

func getRequiredString(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func getBool(args map[string]any, key string, def bool) bool {
	if v, ok := args[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

func getInt(args map[string]any, key string, def int) int {
	if v, ok := args[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		}
	}
	return def
}

// getParams decodes the optional "params" argument (a JSON array) into
// positional query parameters, preserving order.
func getParams(args map[string]any) []core.QueryParam {
	raw, ok := args["params"]
	if !ok {
		return nil
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]core.QueryParam, len(arr))
	for i, v := range arr {
		out[i] = core.AnyParam(v)
	}
	return out
}
