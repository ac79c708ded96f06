// Package mcpserver is the Protocol Server (C6): a thin adapter wrapping
// mark3labs/mcp-go's server.MCPServer, translating Tool Registry specs
// into mcp.Tool declarations and tool-call handlers. mcp-go already
// provides deterministic tool-name ordering, JSON-Schema-typed
// input/output, and tools.listChanged advertisement, so this layer adds
// no behavior of its own beyond the translation.
package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"postgres-ssh-mcp/internal/core"
	"postgres-ssh-mcp/internal/tools"
)

const serverName = "postgresql-ssh-mcp"

// New builds an MCP server advertising every tool in reg in registration
// order.
func New(reg *tools.Registry, version string) *server.MCPServer {
	s := server.NewMCPServer(
		serverName,
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	for _, spec := range reg.Specs() {
		s.AddTool(buildTool(spec), adaptHandler(spec))
	}
	return s
}

func buildTool(spec tools.Spec) mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(spec.Description)}
	for _, in := range spec.Inputs {
		opts = append(opts, fieldOption(in))
	}
	return mcp.NewTool(spec.Name, opts...)
}

func fieldOption(in tools.InputField) mcp.ToolOption {
	var propOpts []mcp.PropertyOption
	if in.Description != "" {
		propOpts = append(propOpts, mcp.Description(in.Description))
	}
	if in.Required {
		propOpts = append(propOpts, mcp.Required())
	}

	switch in.Type {
	case "number":
		if f, ok := toFloat(in.Default); ok {
			propOpts = append(propOpts, mcp.DefaultNumber(f))
		}
		return mcp.WithNumber(in.Name, propOpts...)
	case "boolean":
		if b, ok := in.Default.(bool); ok {
			propOpts = append(propOpts, mcp.DefaultBool(b))
		}
		return mcp.WithBoolean(in.Name, propOpts...)
	case "array":
		return mcp.WithArray(in.Name, propOpts...)
	default:
		if s, ok := in.Default.(string); ok && s != "" {
			propOpts = append(propOpts, mcp.DefaultString(s))
		}
		return mcp.WithString(in.Name, propOpts...)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// adaptHandler wraps a tools.HandlerFunc, which always succeeds with an
// envelope, into mcp-go's handler shape. The only Go-level error this can
// surface comes from the protocol library itself, not from a tool
// failure (those are already folded into resp.IsError).
func adaptHandler(spec tools.Spec) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp := spec.Handler(ctx, request.GetArguments())
		return toCallResult(resp), nil
	}
}

func toCallResult(resp core.ToolResponse) *mcp.CallToolResult {
	content := make([]mcp.Content, len(resp.Content))
	for i, c := range resp.Content {
		content[i] = mcp.TextContent{Type: c.Type, Text: c.Text}
	}
	result := &mcp.CallToolResult{Content: content, IsError: resp.IsError}
	if resp.StructuredContent != nil {
		result.StructuredContent = resp.StructuredContent
	}
	return result
}
