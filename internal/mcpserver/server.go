// Package mcpserver exposes eda tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mwiater/eda/internal/tools"
)

// Server wraps an MCP server with eda tools registered.
type Server struct {
	mcpServer *server.MCPServer
}

// New registers every tool on a fresh MCP server.
func New(name, version string, tt ...tools.Tool) (*Server, error) {
	s := &Server{
		mcpServer: server.NewMCPServer(
			name,
			version,
			server.WithToolCapabilities(true),
		),
	}
	for _, tool := range tt {
		schema, err := tools.Schema(tool)
		if err != nil {
			return nil, err
		}
		def := tool.Definition()
		s.mcpServer.AddTool(mcp.NewToolWithRawSchema(def.Name, def.Description, schema), handlerFor(tool))
	}
	return s, nil
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Serve speaks MCP over the given streams until ctx is done or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcpServer).Listen(ctx, in, out)
}

func handlerFor(tool tools.Tool) server.ToolHandlerFunc {
	name := tool.Definition().Name
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := json.RawMessage("{}")
		if request.Params.Arguments != nil {
			raw, err := json.Marshal(request.Params.Arguments)
			if err != nil {
				return mcp.NewToolResultError("Invalid arguments type"), nil
			}
			args = raw
		}

		slog.Debug("tool call", "tool", name, "args", string(args))
		out, err := tool.Call(ctx, args)
		if err != nil {
			slog.Warn("tool call failed", "tool", name, "err", err)
			return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", name, err)), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}
