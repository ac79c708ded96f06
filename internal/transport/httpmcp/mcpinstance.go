package httpmcp

import (
	"net/http"

	"github.com/mark3labs/mcp-go/server"

	"postgres-ssh-mcp/internal/mcpserver"
	"postgres-ssh-mcp/internal/tools"
)

// mcpServerFor builds one fully-registered protocol server instance. Both
// the stateless pool and every stateful session get their own instance so
// that client-visible state (capabilities negotiated during initialize,
// logging level) never leaks across pool members or sessions.
func mcpServerFor(reg *tools.Registry, version string) *server.MCPServer {
	return mcpserver.New(reg, version)
}

// newStreamableHandler wraps one MCPServer instance in mcp-go's
// streamable-HTTP transport, the same construction the reference SSH-MCP
// bridge in the retrieval pack uses to mount its server at /mcp.
func newStreamableHandler(srv *server.MCPServer) http.Handler {
	return server.NewStreamableHTTPServer(srv)
}
