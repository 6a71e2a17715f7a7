// Package mcp exposes the archive tools over the Model Context Protocol so
// that an operator's own assistant can query the chat archive.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	mcpgo "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/flemzord/sandy/internal/tool"
)

// ServerName is the name announced to MCP clients.
const ServerName = "recall"

const instructions = "Read-only access to an archived chat server. " +
	"Use get_chat_history to browse recent messages and search_messages for full-text search. " +
	"Both accept server or server_id to pick a server."

// NewServer builds an MCP server exposing every tool in the dispatcher's
// registry. Calls run without a scope, so the tools should be registered
// unscoped.
func NewServer(d *tool.Dispatcher, version string, logger *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		ServerName,
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)
	for _, def := range d.Registry().Definitions() {
		s.AddTool(
			mcpgo.NewToolWithRawSchema(def.Name, def.Description, def.Parameters),
			handler(d, def.Name, logger),
		)
	}
	return s
}

func handler(d *tool.Dispatcher, name string, logger *slog.Logger) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcpgo.CallToolRequest) (*mcpgo.CallToolResult, error) {
		args, err := json.Marshal(req.GetRawArguments())
		if err != nil {
			return mcpgo.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}
		out := d.Dispatch(ctx, name, args, tool.Scope{})
		if strings.HasPrefix(out, "Error") {
			logger.Debug("mcp: tool call failed", "tool", name, "result", out)
			return mcpgo.NewToolResultError(out), nil
		}
		return mcpgo.NewToolResultText(out), nil
	}
}

// ServeStdio serves s over the given streams until ctx ends or the input
// closes.
func ServeStdio(ctx context.Context, s *server.MCPServer, in io.Reader, out io.Writer, logger *slog.Logger) error {
	stdio := server.NewStdioServer(s)
	stdio.SetErrorLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	logger.Info("mcp: serving on stdio", "server", ServerName)
	if err := stdio.Listen(ctx, in, out); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcp: stdio: %w", err)
	}
	return nil
}
